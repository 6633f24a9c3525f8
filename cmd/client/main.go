package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"eta/internal/client"
	"eta/internal/config"
	"eta/internal/constants"
	"eta/internal/logger"
	"eta/internal/session"
)

func main() {
	flag.Usage = func() {
		fmt.Println()
		fmt.Printf("  %s%seta-client%s %sv%s%s\n", constants.ColorBold, constants.ColorCyan, constants.ColorReset, constants.ColorBold, constants.Version, constants.ColorReset)
		fmt.Println()
		fmt.Printf("  %sUsage:%s\n", constants.ColorBold, constants.ColorReset)
		fmt.Printf("    eta-client [flags] %sregister%s             # create the account and sign in\n", constants.ColorCyan, constants.ColorReset)
		fmt.Printf("    eta-client [flags] %shost%s                 # create a session and share it\n", constants.ColorCyan, constants.ColorReset)
		fmt.Printf("    eta-client [flags] %sjoin%s <link|id>       # follow someone's session\n", constants.ColorCyan, constants.ColorReset)
		fmt.Printf("    eta-client [flags] %strack%s                # share location with current sessions\n", constants.ColorCyan, constants.ColorReset)
		fmt.Printf("    eta-client [flags] %sauthorize%s <id>       # let the subscriber see you\n", constants.ColorCyan, constants.ColorReset)
		fmt.Printf("    eta-client [flags] %sremove%s <id>          # end a hosted session\n", constants.ColorCyan, constants.ColorReset)
		fmt.Println()
		fmt.Printf("  %sFlags:%s\n", constants.ColorBold, constants.ColorReset)
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Printf("    -%-16s %s\n", f.Name, f.Usage)
		})
		fmt.Println()
	}

	versionFlag := flag.Bool("version", false, "show version")
	emailFlag := flag.String("email", "", "account email (defaults to ETA_EMAIL)")
	passwordFlag := flag.String("password", "", "account password (defaults to ETA_PASSWORD)")
	usernameFlag := flag.String("username", "", "register: public username (defaults to ETA_USERNAME)")
	backendFlag := flag.String("backend", client.BackendRemote, "session backend: remote or store")
	fixesFlag := flag.String("fixes", "", "file of lat,lon[,unix] fixes to replay (defaults to stdin)")
	autoAuthorize := flag.Bool("auto-authorize", false, "host: authorize the first subscriber automatically")
	wizard := flag.Bool("wizard", false, "host: ask for the session settings interactively")
	expires := flag.Duration("expires", 0, "host: session lifetime (defaults to ETA_EXPIRES_AFTER)")
	private := flag.Bool("private", true, "host: private mode")
	logFile := flag.Bool("log-file", true, "write logs to a file instead of stderr")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("  %s%seta-client%s %sv%s%s\n", constants.ColorBold, constants.ColorCyan, constants.ColorReset, constants.ColorBold, constants.Version, constants.ColorReset)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println(constants.MsgUsage)
		fmt.Println(constants.MsgExample)
		os.Exit(1)
	}
	command := args[0]

	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("  %s%s%s\n", constants.ColorRed, err.Error(), constants.ColorReset)
		os.Exit(1)
	}

	logg, closeLog := newLogger(cfg, *logFile)
	defer closeLog()

	var fixes io.Reader = os.Stdin
	if *fixesFlag != "" {
		f, err := os.Open(*fixesFlag)
		if err != nil {
			fmt.Printf("  %sopen fixes: %s%s\n", constants.ColorRed, err.Error(), constants.ColorReset)
			os.Exit(1)
		}
		defer f.Close()
		fixes = f
	}

	runner, err := client.New(client.Options{
		Config:   cfg,
		Email:    orDefault(*emailFlag, cfg.Email),
		Password: orDefault(*passwordFlag, cfg.Password),
		Backend:  *backendFlag,
		Fixes:    fixes,
		Out:      os.Stdout,
		Log:      logg,
	})
	if err != nil {
		fmt.Printf("  %s%s%s\n", constants.ColorRed, err.Error(), constants.ColorReset)
		os.Exit(1)
	}
	defer runner.Close()

	ctx, stop := signal.NotifyContext(context.Background(), client.ShutdownSignals()...)
	defer stop()

	if sigs := client.SignOutSignals(); len(sigs) > 0 {
		signOut := make(chan os.Signal, 1)
		signal.Notify(signOut, sigs...)
		go func() {
			select {
			case <-signOut:
				runner.SignOut()
			case <-ctx.Done():
			}
		}()
	}

	p := runner.Printer()
	p.Banner()

	if command == "register" {
		err = runner.Register(ctx, orDefault(*usernameFlag, cfg.Username))
	} else {
		err = runner.SignIn(ctx)
	}
	if err != nil {
		p.Error(err)
		runner.Close()
		os.Exit(1)
	}

	switch command {
	case "register":
	case "host":
		sessionCfg := session.Configuration{ExpiresAfter: cfg.DefaultExpiresAfter, PrivateMode: *private}
		if *expires > 0 {
			sessionCfg.ExpiresAfter = *expires
		}
		if *wizard {
			sessionCfg = client.RunConfigWizard(os.Stdin, p, sessionCfg)
		}
		err = runner.Host(ctx, sessionCfg, *autoAuthorize)
	case "join":
		err = withTarget(args, func(target string) error { return runner.Join(ctx, target) })
	case "track":
		err = runner.Track(ctx)
	case "authorize":
		err = withTarget(args, func(target string) error { return runner.Authorize(ctx, target) })
	case "remove":
		err = withTarget(args, func(target string) error { return runner.Remove(ctx, target) })
	default:
		flag.Usage()
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		p.Error(err)
		runner.Close()
		os.Exit(1)
	}
	fmt.Printf("  %s● disconnected%s\n", constants.ColorRed, constants.ColorReset)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func withTarget(args []string, fn func(string) error) error {
	if len(args) < 2 {
		return fmt.Errorf("%s needs a session link or identifier", args[0])
	}
	return fn(args[1])
}

// newLogger keeps the terminal for the client's own output by logging to a
// file when possible.
func newLogger(cfg *config.Config, toFile bool) (zerolog.Logger, func()) {
	if toFile {
		name := fmt.Sprintf("client-%s", time.Now().Format("2006-01-02"))
		logg, closer, err := logger.NewFile(name, cfg.LogLevel, constants.DefaultClientService, cfg.Environment)
		if err == nil {
			return logg, func() { closer.Close() }
		}
		fmt.Fprintf(os.Stderr, "warning: %v, logging to stderr\n", err)
	}
	return logger.New(cfg.LogLevel, constants.DefaultClientService, cfg.Environment), func() {}
}
