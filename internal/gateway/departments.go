package gateway

import (
	"context"
	"net/http"

	"github.com/hospital/inpatient/internal/domain/ward"
	"github.com/hospital/inpatient/internal/platform/apperr"
)

const departmentsPath = "/api/khoaphong"

type departmentWire struct {
	ID                flexID     `json:"id"`
	TenKhoa           string     `json:"tenKhoa"`
	LoaiKhoa          string     `json:"loaiKhoa"`
	SoGiuongTieuChuan flexNumber `json:"soGiuongTieuChuan"`
}

func (w departmentWire) toDepartment() ward.Department {
	return ward.Department{
		ID:               string(w.ID),
		Name:             w.TenKhoa,
		Category:         w.LoaiKhoa,
		StandardBedCount: int(w.SoGiuongTieuChuan),
	}
}

func (c *Client) ListDepartments(ctx context.Context) ([]ward.Department, error) {
	var wires []departmentWire
	if err := c.call(ctx, "departments", http.MethodGet, departmentsPath+"/get-all", nil, &wires, nil); err != nil {
		return nil, err
	}
	out := make([]ward.Department, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.toDepartment())
	}
	return out, nil
}

func (c *Client) GetDepartment(ctx context.Context, id string) (*ward.Department, error) {
	var w departmentWire
	if err := c.callByID(ctx, "departments", http.MethodGet, departmentsPath+"/get-by-id/{id}", id, &w); err != nil {
		return nil, err
	}
	d := w.toDepartment()
	if d.ID == "" {
		return nil, apperr.NotFound("departments.get", "department %s not found", id)
	}
	return &d, nil
}
