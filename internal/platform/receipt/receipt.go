// Package receipt renders the appointment receipt ("boleta") handed to
// patients after booking.
package receipt

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
)

var ErrRendererUnavailable = errors.New("receipt renderer unavailable")

type Patient struct {
	Name       string
	DocumentID string
	Email      string
	Phone      string
}

type Appointment struct {
	ID        int64
	Specialty string
	Doctor    string
	Date      string
	Time      string
	Status    string
}

type Payment struct {
	Method    string
	Reference string
}

// Document is everything printed on one receipt.
type Document struct {
	Patient     Patient
	Appointment Appointment
	Payment     Payment
	// QRImage is a PNG printed beside the payment section when present.
	QRImage []byte
}

type Renderer interface {
	Render(doc Document) ([]byte, error)
}

// PDFRenderer lays out an A4 receipt with the clinic's brand in the header
// and its address in the footer.
type PDFRenderer struct {
	Brand   string
	Address string
}

func NewPDFRenderer(brand, address string) *PDFRenderer {
	return &PDFRenderer{Brand: brand, Address: address}
}

func (r *PDFRenderer) Render(doc Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetTitle("Boleta "+strconv.FormatInt(doc.Appointment.ID, 10), true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(0, 74, 173)
	pdf.CellFormat(0, 12, tr("BOLETA - Clínica "+r.Brand), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	section(pdf, tr, "Datos del paciente")
	row(pdf, tr, "Nombre:", doc.Patient.Name, 240, 245, 255)
	row(pdf, tr, "DNI:", doc.Patient.DocumentID, 240, 245, 255)
	row(pdf, tr, "Correo:", doc.Patient.Email, 240, 245, 255)
	row(pdf, tr, "Teléfono:", orDash(doc.Patient.Phone), 240, 245, 255)
	pdf.Ln(4)

	section(pdf, tr, "Detalles de la cita")
	row(pdf, tr, "Especialidad:", doc.Appointment.Specialty, 234, 242, 255)
	row(pdf, tr, "Médico:", doc.Appointment.Doctor, 234, 242, 255)
	row(pdf, tr, "Fecha:", doc.Appointment.Date, 234, 242, 255)
	row(pdf, tr, "Hora:", doc.Appointment.Time, 234, 242, 255)
	row(pdf, tr, "Estado:", doc.Appointment.Status, 234, 242, 255)
	row(pdf, tr, "Código:", strconv.FormatInt(doc.Appointment.ID, 10), 234, 242, 255)
	pdf.Ln(4)

	section(pdf, tr, "Pago")
	paymentTop := pdf.GetY()
	row(pdf, tr, "Método:", orDash(doc.Payment.Method), 255, 255, 255)
	row(pdf, tr, "Referencia:", orDash(doc.Payment.Reference), 255, 255, 255)

	if len(doc.QRImage) > 0 {
		name := "qr-" + strconv.FormatInt(doc.Appointment.ID, 10)
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(doc.QRImage))
		pdf.ImageOptions(name, 150, paymentTop, 35, 35, false, opts, 0, "")
		if pdf.GetY() < paymentTop+38 {
			pdf.SetY(paymentTop + 38)
		}
	}
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 5, tr("Gracias por confiar en Clínica "+r.Brand+"."), "", "L", false)
	if r.Address != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(102, 102, 102)
		pdf.CellFormat(0, 5, tr(r.Address), "", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, tr func(string) string, title string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(0, 119, 204)
	pdf.CellFormat(0, 9, tr(title), "", 1, "L", false, 0, "")
}

func row(pdf *gofpdf.Fpdf, tr func(string) string, label, value string, r, g, b int) {
	pdf.SetTextColor(0, 0, 0)
	pdf.SetDrawColor(207, 207, 207)
	pdf.SetFillColor(r, g, b)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 8, tr(label), "1", 0, "", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(85, 8, tr(value), "1", 1, "", false, 0, "")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Unavailable is the renderer used when PDF generation is switched off.
type Unavailable struct{}

func (Unavailable) Render(Document) ([]byte, error) { return nil, ErrRendererUnavailable }
