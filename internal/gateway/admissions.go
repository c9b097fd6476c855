package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hospital/inpatient/internal/domain/admission"
	"github.com/hospital/inpatient/internal/domain/ward"
	"github.com/hospital/inpatient/internal/platform/apperr"
)

const (
	admissionsPath = "/api/nhapvien"
	dischargePath  = "/api/xuatvien"
)

type patientRefWire struct {
	ID    flexID `json:"id"`
	HoTen string `json:"hoTen"`
}

type admissionWire struct {
	ID               flexID          `json:"id"`
	BenhNhanID       flexID          `json:"benhNhanId"`
	TenBenhNhan      string          `json:"tenBenhNhan"`
	MaBenhNhan       flexID          `json:"maBenhNhan"`
	BenhNhan         *patientRefWire `json:"benhNhan"`
	KhoaID           flexID          `json:"khoaId"`
	GiuongID         flexID          `json:"giuongId"`
	LyDoNhap         string          `json:"lyDoNhap"`
	NgayNhap         flexTime        `json:"ngayNhap"`
	NgayNhapVien     flexTime        `json:"ngayNhapVien"`
	NgayXuat         flexTime        `json:"ngayXuat"`
	NgayXuatVien     flexTime        `json:"ngayXuatVien"`
	ChanDoan         string          `json:"chanDoan"`
	ChanDoanXuatVien string          `json:"chanDoanXuatVien"`
	HuongDieuTri     string          `json:"huongDieuTri"`
	TrangThai        string          `json:"trangThai"`
}

func dischargedStatus(s string) bool {
	switch strings.ToLower(strings.ReplaceAll(s, " ", "")) {
	case "daxuatvien", "đãxuấtviện", "discharged":
		return true
	}
	return false
}

func (w admissionWire) toAdmission() ward.Admission {
	a := ward.Admission{
		ID:           string(w.ID),
		PatientID:    string(w.BenhNhanID),
		PatientName:  w.TenBenhNhan,
		PatientCode:  string(w.MaBenhNhan),
		DepartmentID: string(w.KhoaID),
		BedID:        string(w.GiuongID),
		Reason:       w.LyDoNhap,
		AdmittedAt:   w.NgayNhap.Time,
		Diagnosis:    w.ChanDoan,
		Treatment:    w.HuongDieuTri,
	}
	if w.BenhNhan != nil {
		if a.PatientID == "" {
			a.PatientID = string(w.BenhNhan.ID)
		}
		if a.PatientName == "" {
			a.PatientName = w.BenhNhan.HoTen
		}
	}
	if a.AdmittedAt.IsZero() {
		a.AdmittedAt = w.NgayNhapVien.Time
	}
	if w.ChanDoanXuatVien != "" {
		a.Diagnosis = w.ChanDoanXuatVien
	}

	a.DischargedAt = w.NgayXuat.ptr()
	if a.DischargedAt == nil {
		a.DischargedAt = w.NgayXuatVien.ptr()
	}
	if a.DischargedAt == nil && dischargedStatus(w.TrangThai) {
		a.DischargedAt = &time.Time{}
	}
	return a
}

func toAdmissions(wires []admissionWire) []ward.Admission {
	out := make([]ward.Admission, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.toAdmission())
	}
	return out
}

// ListActiveAdmissions returns the current inpatients.
func (c *Client) ListActiveAdmissions(ctx context.Context) ([]ward.Admission, error) {
	var wires []admissionWire
	if err := c.call(ctx, "admissions", http.MethodGet, admissionsPath+"/danh-sach", nil, &wires, nil); err != nil {
		return nil, err
	}
	all := toAdmissions(wires)
	active := all[:0]
	for _, a := range all {
		if a.Active() {
			active = append(active, a)
		}
	}
	return active, nil
}

func (c *Client) GetAdmission(ctx context.Context, id string) (*ward.Admission, error) {
	var w admissionWire
	if err := c.callByID(ctx, "admissions", http.MethodGet, admissionsPath+"/chi-tiet/{id}", id, &w); err != nil {
		return nil, err
	}
	a := w.toAdmission()
	if a.ID == "" {
		return nil, apperr.NotFound("admissions.get", "admission %s not found", id)
	}
	return &a, nil
}

type searchWire struct {
	BenhNhanID string `json:"benhNhanId,omitempty"`
	KhoaID     string `json:"khoaId,omitempty"`
	TuKhoa     string `json:"tuKhoa,omitempty"`
}

func (c *Client) SearchAdmissions(ctx context.Context, q ward.AdmissionQuery) ([]ward.Admission, error) {
	body := searchWire{BenhNhanID: q.PatientID, KhoaID: q.DepartmentID, TuKhoa: q.Query}
	var wires []admissionWire
	if err := c.call(ctx, "admissions", http.MethodPost, admissionsPath+"/tim-kiem", body, &wires, nil); err != nil {
		return nil, err
	}
	return toAdmissions(wires), nil
}

type admitWire struct {
	BenhNhanID string `json:"benhNhanId"`
	KhoaID     string `json:"khoaId"`
	GiuongID   string `json:"giuongId"`
	LyDoNhap   string `json:"lyDoNhap"`
	NgayNhap   string `json:"ngayNhap"`
}

// Admit creates the admission. When the gateway answers without the new id
// the admission is looked up by patient and bed.
func (c *Client) Admit(ctx context.Context, req admission.AdmitRequest) (*ward.Admission, error) {
	admittedAt := time.Now()
	if req.AdmittedAt != nil {
		admittedAt = *req.AdmittedAt
	}
	body := admitWire{
		BenhNhanID: req.PatientID,
		KhoaID:     req.DepartmentID,
		GiuongID:   req.BedID,
		LyDoNhap:   req.Reason,
		NgayNhap:   admittedAt.Format(time.RFC3339),
	}
	var w admissionWire
	if err := c.call(ctx, "admissions", http.MethodPost, admissionsPath+"/nhap-vien-moi", body, &w, nil); err != nil {
		return nil, err
	}
	a := w.toAdmission()
	if a.ID != "" {
		fillAdmit(&a, req, admittedAt)
		return &a, nil
	}

	found, err := c.SearchAdmissions(ctx, ward.AdmissionQuery{PatientID: req.PatientID})
	if err != nil {
		return nil, err
	}
	for i := range found {
		if found[i].BedID == req.BedID && found[i].Active() {
			fillAdmit(&found[i], req, admittedAt)
			return &found[i], nil
		}
	}
	return nil, apperr.Internal("admissions.create", errors.New("gateway accepted the admission but returned no id"))
}

func fillAdmit(a *ward.Admission, req admission.AdmitRequest, admittedAt time.Time) {
	if a.PatientID == "" {
		a.PatientID = req.PatientID
	}
	if a.BedID == "" {
		a.BedID = req.BedID
	}
	if a.DepartmentID == "" {
		a.DepartmentID = req.DepartmentID
	}
	if a.AdmittedAt.IsZero() {
		a.AdmittedAt = admittedAt
	}
}

type transferWire struct {
	NhapVienID  string `json:"nhapVienId"`
	GiuongMoiID string `json:"giuongMoiId"`
	LyDo        string `json:"lyDo"`
}

func (c *Client) Transfer(ctx context.Context, admissionID string, req admission.TransferRequest) error {
	body := transferWire{NhapVienID: admissionID, GiuongMoiID: req.NewBedID, LyDo: req.Reason}
	return c.call(ctx, "admissions", http.MethodPut, admissionsPath+"/chuyen-giuong", body, nil, nil)
}

type dischargeWire struct {
	ID               string `json:"id"`
	NgayXuat         string `json:"ngayXuat"`
	ChanDoanXuatVien string `json:"chanDoanXuatVien"`
	LoiDanBacSi      string `json:"loiDanBacSi,omitempty"`
	GhiChu           string `json:"ghiChu,omitempty"`
}

func (c *Client) Discharge(ctx context.Context, admissionID string, req admission.DischargeRequest) error {
	body := dischargeWire{
		ID:               admissionID,
		NgayXuat:         req.DischargedAt.Format(time.RFC3339),
		ChanDoanXuatVien: req.Diagnosis,
		LoiDanBacSi:      req.DoctorAdvice,
		GhiChu:           req.Notes,
	}
	return c.call(ctx, "discharge", http.MethodPut, dischargePath+"/xac-nhan", body, nil, nil)
}
