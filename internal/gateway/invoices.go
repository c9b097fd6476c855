package gateway

import (
	"context"
	"net/http"

	"github.com/hospital/inpatient/internal/domain/admission"
	"github.com/hospital/inpatient/internal/domain/billing"
	"github.com/hospital/inpatient/internal/domain/ward"
	"github.com/hospital/inpatient/internal/platform/apperr"
)

const invoicesPath = "/api/hoadon"

var (
	_ ward.BedSource        = (*Client)(nil)
	_ ward.AdmissionSource  = (*Client)(nil)
	_ ward.DepartmentSource = (*Client)(nil)
	_ admission.Gateway     = (*Client)(nil)
	_ billing.InvoiceSource = (*Client)(nil)
)

type previewWire struct {
	BenhNhanID      flexID     `json:"benhNhanId"`
	TenBenhNhan     string     `json:"tenBenhNhan"`
	TenGiuong       string     `json:"tenGiuong"`
	GiaGiuong       flexNumber `json:"giaGiuong"`
	SoNgayNam       flexNumber `json:"soNgayNam"`
	TienGiuong      flexNumber `json:"tienGiuong"`
	ChiPhiPhauThuat flexNumber `json:"chiPhiPhauThuat"`
	ChiPhiXetNghiem flexNumber `json:"chiPhiXetNghiem"`
	TongTienGoiY    flexNumber `json:"tongTienGoiY"`
	MucHuong        flexNumber `json:"mucHuong"`
	NgayNhap        flexTime   `json:"ngayNhap"`
}

func (c *Client) Preview(ctx context.Context, admissionID string) (*billing.Preview, error) {
	var w previewWire
	if err := c.callByID(ctx, "invoices", http.MethodGet, invoicesPath+"/xem-truoc/{id}", admissionID, &w); err != nil {
		return nil, err
	}
	return &billing.Preview{
		AdmissionID:    admissionID,
		PatientID:      string(w.BenhNhanID),
		PatientName:    w.TenBenhNhan,
		BedName:        w.TenGiuong,
		BedPrice:       float64(w.GiaGiuong),
		NightsStayed:   float64(w.SoNgayNam),
		AdmittedAt:     w.NgayNhap.Time,
		SurgeryCost:    float64(w.ChiPhiPhauThuat),
		LabCost:        float64(w.ChiPhiXetNghiem),
		SuggestedTotal: float64(w.TongTienGoiY),
		CoverageRate:   NormalizeCoverage(float64(w.MucHuong)),
	}, nil
}

type invoiceWire struct {
	ID                flexID     `json:"id"`
	BenhNhanID        flexID     `json:"benhNhanId"`
	NhapVienID        flexID     `json:"nhapVienId"`
	TenBenhNhan       string     `json:"tenBenhNhan"`
	TongTien          flexNumber `json:"tongTien"`
	BaoHiemChiTra     flexNumber `json:"baoHiemChiTra"`
	BenhNhanThanhToan flexNumber `json:"benhNhanThanhToan"`
	MucHuong          flexNumber `json:"mucHuong"`
	TrangThai         flexID     `json:"trangThai"`
	TienGiuong        flexNumber `json:"tienGiuong"`
	ChiPhiPhauThuat   flexNumber `json:"chiPhiPhauThuat"`
	ChiPhiXetNghiem   flexNumber `json:"chiPhiXetNghiem"`
	GhiChu            string     `json:"ghiChu"`
	NgayTao           flexTime   `json:"ngayTao"`
	NgayThanhToan     flexTime   `json:"ngayThanhToan"`
}

func (w invoiceWire) toInvoice() billing.Invoice {
	return billing.Invoice{
		ID:               string(w.ID),
		AdmissionID:      string(w.NhapVienID),
		PatientID:        string(w.BenhNhanID),
		PatientName:      w.TenBenhNhan,
		Total:            float64(w.TongTien),
		InsuranceCovered: float64(w.BaoHiemChiTra),
		PatientPaid:      float64(w.BenhNhanThanhToan),
		CoverageRate:     NormalizeCoverage(float64(w.MucHuong)),
		Status:           invoiceStatusFromWire(string(w.TrangThai)),
		BedCost:          float64(w.TienGiuong),
		SurgeryCost:      float64(w.ChiPhiPhauThuat),
		LabCost:          float64(w.ChiPhiXetNghiem),
		Note:             w.GhiChu,
		CreatedAt:        w.NgayTao.ptr(),
		PaidAt:           w.NgayThanhToan.ptr(),
	}
}

// ListInvoices filters by patient and admission. An empty query lists every
// invoice.
func (c *Client) ListInvoices(ctx context.Context, q billing.InvoiceQuery) ([]billing.Invoice, error) {
	path := invoicesPath + "/lay-tat-ca"
	var query map[string]string
	if q.PatientID != "" || q.AdmissionID != "" {
		path = invoicesPath + "/danh-sach"
		query = map[string]string{}
		if q.PatientID != "" {
			query["benhNhanId"] = q.PatientID
		}
		if q.AdmissionID != "" {
			query["nhapVienId"] = q.AdmissionID
		}
	}

	var wires []invoiceWire
	if err := c.call(ctx, "invoices", http.MethodGet, path, nil, &wires, query); err != nil {
		return nil, err
	}
	out := make([]billing.Invoice, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.toInvoice())
	}
	return out, nil
}

func (c *Client) GetInvoice(ctx context.Context, id string) (*billing.Invoice, error) {
	var w invoiceWire
	if err := c.callByID(ctx, "invoices", http.MethodGet, invoicesPath+"/chi-tiet/{id}", id, &w); err != nil {
		return nil, err
	}
	inv := w.toInvoice()
	if inv.ID == "" {
		return nil, apperr.NotFound("invoices.get", "invoice %s not found", id)
	}
	return &inv, nil
}

type createInvoiceWire struct {
	BenhNhanID        string  `json:"benhNhanId"`
	NhapVienID        string  `json:"nhapVienId"`
	TongTien          float64 `json:"tongTien"`
	BaoHiemChiTra     float64 `json:"baoHiemChiTra"`
	BenhNhanThanhToan float64 `json:"benhNhanThanhToan"`
	MucHuong          float64 `json:"mucHuong"`
	TienGiuong        float64 `json:"tienGiuong,omitempty"`
	ChiPhiPhauThuat   float64 `json:"chiPhiPhauThuat,omitempty"`
	ChiPhiXetNghiem   float64 `json:"chiPhiXetNghiem,omitempty"`
	GhiChu            string  `json:"ghiChu,omitempty"`
}

// CreateInvoice posts a new invoice and copies the gateway's id and status
// back onto inv.
func (c *Client) CreateInvoice(ctx context.Context, inv *billing.Invoice) error {
	body := createInvoiceWire{
		BenhNhanID:        inv.PatientID,
		NhapVienID:        inv.AdmissionID,
		TongTien:          inv.Total,
		BaoHiemChiTra:     inv.InsuranceCovered,
		BenhNhanThanhToan: inv.PatientPaid,
		MucHuong:          c.coverage.encode(inv.CoverageRate),
		TienGiuong:        inv.BedCost,
		ChiPhiPhauThuat:   inv.SurgeryCost,
		ChiPhiXetNghiem:   inv.LabCost,
		GhiChu:            inv.Note,
	}
	var w invoiceWire
	if err := c.call(ctx, "invoices", http.MethodPost, invoicesPath+"/tao-moi", body, &w, nil); err != nil {
		return err
	}
	inv.ID = string(w.ID)
	if w.TrangThai != "" {
		inv.Status = invoiceStatusFromWire(string(w.TrangThai))
	}
	if t := w.NgayTao.ptr(); t != nil {
		inv.CreatedAt = t
	}
	return nil
}

func (c *Client) PayInvoice(ctx context.Context, id string) error {
	body := map[string]string{"id": id}
	return c.call(ctx, "invoices", http.MethodPut, invoicesPath+"/thanh-toan", body, nil, nil)
}
