package whatsapp

import (
	"io"

	"github.com/mdp/qrterminal/v3"
)

// printQR renders a scan code for a terminal.
func printQR(w io.Writer, code string) {
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}
