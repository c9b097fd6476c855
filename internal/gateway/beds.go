package gateway

import (
	"context"
	"net/http"

	"github.com/hospital/inpatient/internal/domain/ward"
	"github.com/hospital/inpatient/internal/platform/apperr"
)

const bedsPath = "/api/giuongbenh"

type bedWire struct {
	ID         flexID     `json:"id"`
	MaGiuong   flexID     `json:"maGiuong"`
	KhoaID     flexID     `json:"khoaId"`
	TenGiuong  string     `json:"tenGiuong"`
	LoaiGiuong string     `json:"loaiGiuong"`
	GiaTien    flexNumber `json:"giaTien"`
	TrangThai  bedStatus  `json:"trangThai"`
}

func (w bedWire) toBed() ward.Bed {
	id := string(w.ID)
	if id == "" {
		id = string(w.MaGiuong)
	}
	b := ward.Bed{
		ID:           id,
		DepartmentID: string(w.KhoaID),
		Name:         w.TenGiuong,
		Category:     categoryFromWire(w.LoaiGiuong),
		PricePerDay:  float64(w.GiaTien),
	}
	if w.TrangThai {
		b.Occupancy = ward.Occupied
	}
	return b
}

type bedWriteWire struct {
	ID         string  `json:"id,omitempty"`
	KhoaID     string  `json:"khoaId"`
	TenGiuong  string  `json:"tenGiuong"`
	LoaiGiuong string  `json:"loaiGiuong"`
	GiaTien    float64 `json:"giaTien"`
	TrangThai  string  `json:"trangThai,omitempty"`
}

func (c *Client) ListBeds(ctx context.Context) ([]ward.Bed, error) {
	var wires []bedWire
	if err := c.call(ctx, "beds", http.MethodGet, bedsPath+"/get-all", nil, &wires, nil); err != nil {
		return nil, err
	}
	beds := make([]ward.Bed, 0, len(wires))
	for _, w := range wires {
		beds = append(beds, w.toBed())
	}
	return beds, nil
}

func (c *Client) GetBed(ctx context.Context, id string) (*ward.Bed, error) {
	var w bedWire
	if err := c.callByID(ctx, "beds", http.MethodGet, bedsPath+"/get-by-id/{id}", id, &w); err != nil {
		return nil, err
	}
	b := w.toBed()
	if b.ID == "" {
		return nil, apperr.NotFound("beds.get", "bed %s not found", id)
	}
	return &b, nil
}

func (c *Client) CreateBed(ctx context.Context, b *ward.Bed) error {
	body := bedWriteWire{
		KhoaID:     b.DepartmentID,
		TenGiuong:  b.Name,
		LoaiGiuong: categoryToWire(b.Category),
		GiaTien:    b.PricePerDay,
	}
	var created bedWire
	if err := c.call(ctx, "beds", http.MethodPost, bedsPath+"/create", body, &created, nil); err != nil {
		return err
	}
	if id := created.toBed().ID; id != "" {
		b.ID = id
	}
	return nil
}

func (c *Client) UpdateBed(ctx context.Context, b *ward.Bed) error {
	body := bedWriteWire{
		ID:         b.ID,
		KhoaID:     b.DepartmentID,
		TenGiuong:  b.Name,
		LoaiGiuong: categoryToWire(b.Category),
		GiaTien:    b.PricePerDay,
		TrangThai:  bedStatusToWire(b.Occupancy),
	}
	return c.call(ctx, "beds", http.MethodPut, bedsPath+"/update-giuong", body, nil, nil)
}

func (c *Client) DeleteBed(ctx context.Context, id string) error {
	return c.callByID(ctx, "beds", http.MethodDelete, bedsPath+"/delete-giuong/{id}", id, nil)
}
