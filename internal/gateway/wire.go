package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hospital/inpatient/internal/domain/billing"
	"github.com/hospital/inpatient/internal/domain/ward"
)

// flexID accepts ids sent as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// flexNumber accepts numbers, numeric strings and null.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || len(data) == 0 {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("number: %w", err)
		}
		*f = flexNumber(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexNumber(v)
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// flexTime accepts the timestamp layouts the gateway emits. Timestamps
// without a zone are read as UTC.
type flexTime struct {
	time.Time
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		f.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q", s)
}

func (f flexTime) ptr() *time.Time {
	if f.IsZero() {
		return nil
	}
	t := f.Time
	return &t
}

// -- Bed status & category --

const (
	wireBedFree   = "Trống"
	wireBedInUse  = "Đang sử dụng"
	wireBedNormal = "Thường"
	wireBedVIP    = "VIP"
)

// bedStatus reads the gateway's bed status in any of its forms: 0/1,
// "0"/"1", "Trống"/"Đang sử dụng", or a boolean.
type bedStatus bool

func (b *bedStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", "0", "false", "":
		*b = false
		return nil
	case "1", "true":
		*b = true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("bed status: %w", err)
	}
	occupied, err := parseBedStatus(s)
	if err != nil {
		return err
	}
	*b = bedStatus(occupied)
	return nil
}

func parseBedStatus(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", strings.ToLower(wireBedFree), "available", "trong":
		return false, nil
	case "1", strings.ToLower(wireBedInUse), "occupied", "dang su dung":
		return true, nil
	}
	return false, fmt.Errorf("unknown bed status %q", s)
}

func bedStatusToWire(o ward.Occupancy) string {
	if o == ward.Occupied {
		return wireBedInUse
	}
	return wireBedFree
}

func categoryFromWire(s string) ward.Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vip":
		return ward.CategoryVIP
	}
	return ward.CategoryStandard
}

func categoryToWire(c ward.Category) string {
	if c == ward.CategoryVIP {
		return wireBedVIP
	}
	return wireBedNormal
}

// -- Invoice status --

func invoiceStatusFromWire(s string) billing.InvoiceStatus {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "dathanhtoan", "đãthanhtoán", "paid":
		return billing.Paid
	case "no", "nợ", "nophi", "nợphí", "conno", "cònnợ", "debt":
		return billing.Debt
	}
	return billing.Unpaid
}

// -- Coverage --

// CoverageFormat is how a coverage rate is written to the gateway.
type CoverageFormat string

const (
	CoverageFraction CoverageFormat = "fraction"
	CoveragePercent  CoverageFormat = "percent"
)

func (f CoverageFormat) Valid() bool {
	return f == CoverageFraction || f == CoveragePercent
}

// NormalizeCoverage turns a raw coverage rate into a fraction in [0,1].
// Values above 1 are whole-number percentages.
func NormalizeCoverage(raw float64) float64 {
	if math.IsNaN(raw) || raw <= 0 {
		return 0
	}
	if raw > 1 {
		raw /= 100
	}
	if raw > 1 {
		return 1
	}
	return raw
}

func (f CoverageFormat) encode(rate float64) float64 {
	rate = NormalizeCoverage(rate)
	if f == CoveragePercent {
		return math.Round(rate * 100)
	}
	return rate
}
