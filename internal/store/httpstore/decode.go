package httpstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// unwrapList accepts a bare array or an object holding the array under one
// of keys.
func unwrapList(raw json.RawMessage, keys ...string) ([]appointment.RawRecord, error) {
	var list []appointment.RawRecord
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: unexpected list payload", ErrRemote)
	}
	for _, k := range keys {
		inner, ok := envelope[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, &list); err == nil {
			return list, nil
		}
	}
	return nil, fmt.Errorf("%w: no list found in payload", ErrRemote)
}

// unwrapOne accepts a record or an object holding it under one of keys.
func unwrapOne(raw json.RawMessage, keys ...string) (appointment.RawRecord, error) {
	var rec appointment.RawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: unexpected record payload", ErrRemote)
	}
	for _, k := range keys {
		if inner, ok := rec[k].(map[string]any); ok {
			return appointment.RawRecord(inner), nil
		}
	}
	return rec, nil
}

func normalizeService(r appointment.RawRecord) (appointment.Service, bool) {
	svc := appointment.Service{
		ID:   stringField(r, "id", "_id", "service_id", "codigo"),
		Name: stringField(r, "name", "nombre", "title"),
	}
	if svc.ID == "" {
		return svc, false
	}
	if svc.Name == "" {
		svc.Name = svc.ID
	}
	if d := stringField(r, "duration", "duration_minutes", "duracion"); d != "" {
		if n, err := strconv.ParseFloat(d, 64); err == nil {
			svc.Duration = int(n)
		}
	}
	return svc, true
}

func stringField(r appointment.RawRecord, keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
