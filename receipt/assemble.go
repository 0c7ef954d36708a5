package receipt

import (
	"bytes"

	"github.com/AlexStarov/escpos-print-agent/printer"
)

// Assemble builds the raw byte stream for job: drawer kick, then the logo
// raster centred when the job asks for one and logo is non-empty, then
// the payload unchanged.
func Assemble(job Job, logo []byte) []byte {
	var buf bytes.Buffer
	p := printer.NewPrinter(&buf)

	p.Cash()
	if job.IncludeLogo && len(logo) > 0 {
		p.SetAlign("center")
		p.Write(logo)
		p.SetAlign("left")
	}
	p.Write(job.Payload)

	return buf.Bytes()
}
