package client

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/skip2/go-qrcode"

	"eta/internal/constants"
	"eta/internal/location"
)

const (
	ColorReset  = constants.ColorReset
	ColorBold   = constants.ColorBold
	ColorDim    = constants.ColorDim
	ColorCyan   = constants.ColorCyan
	ColorGreen  = constants.ColorGreen
	ColorYellow = constants.ColorYellow
	ColorRed    = constants.ColorRed
	ColorPurple = constants.ColorPurple
)

// Printer writes the client's terminal output. It is safe for concurrent use.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (p *Printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *Printer) Banner() {
	p.printf("\n  %s%seta%s %sv%s%s\n", ColorBold, ColorCyan, ColorReset, ColorBold, constants.Version, ColorReset)
	p.printf("  %sShare your live location until you arrive%s\n\n", ColorDim, ColorReset)
}

func (p *Printer) Hint(text string) {
	p.printf("  %s%s%s\n", ColorDim, text, ColorReset)
}

func (p *Printer) Step(text string) {
	p.printf("  %s%s▸%s %s\n", ColorBold, ColorCyan, ColorReset, text)
}

func (p *Printer) Field(label, value, valueColor string) {
	p.printf("  %s%-12s%s %s%s%s\n", ColorDim, label, ColorReset, valueColor, value, ColorReset)
}

func (p *Printer) Sep() {
	p.printf("  %s%s%s\n", ColorDim, strings.Repeat("─", 50), ColorReset)
}

func (p *Printer) Error(err error) {
	p.printf("  %s%s%s\n", ColorRed, err.Error(), ColorReset)
}

// Status prints one line describing the controller state.
func (p *Printer) Status(st location.Status) {
	dot := ColorDim + "○ idle" + ColorReset
	if st.State == location.Tracking {
		dot = ColorGreen + "● tracking" + ColorReset
	}
	p.printf("  %s  %shosting%s %d  %ssubscribed%s %d  %sauthorized%s %d\n",
		dot,
		ColorDim, ColorReset, st.Hosting,
		ColorDim, ColorReset, st.Subscribed,
		ColorDim, ColorReset, st.Authorized,
	)
}

// QR prints content as a terminal QR code, two modules per character row.
func (p *Printer) QR(content string) error {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("encode qr: %w", err)
	}
	p.printf("%s", renderQR(q.Bitmap()))
	return nil
}

func renderQR(bitmap [][]bool) string {
	var b strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		b.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bottom := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bottom:
				b.WriteRune(' ')
			case top:
				b.WriteRune('▄')
			case bottom:
				b.WriteRune('▀')
			default:
				b.WriteRune('█')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
