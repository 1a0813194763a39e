package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/niktheblak/ruuvitag-sensor/pkg/ruuvitag"
)

var columnsPattern = regexp.MustCompile(`^[\w,]*\w$`)

func latestHandler(service Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loc, columns, ok := parseQuery(w, r, logger)
		if !ok {
			return
		}
		measurements, ok := current(w, r, service, logger)
		if !ok {
			return
		}
		response := make(map[string]map[string]any)
		for addr, m := range measurements {
			response[addr.String()] = createResponse(m, columns, loc)
		}
		writeJSON(w, r, response, logger)
	})
}

func tagHandler(service Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr, err := ruuvitag.ParseAddress(r.PathValue("mac"))
		if err != nil {
			http.Error(w, "Invalid MAC address", http.StatusBadRequest)
			return
		}
		loc, columns, ok := parseQuery(w, r, logger)
		if !ok {
			return
		}
		measurements, ok := current(w, r, service, logger)
		if !ok {
			return
		}
		m, found := measurements[addr]
		if !found {
			http.Error(w, "RuuviTag not found", http.StatusNotFound)
			return
		}
		writeJSON(w, r, createResponse(m, columns, loc), logger)
	})
}

func parseQuery(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*time.Location, []string, bool) {
	loc, err := parseLocation(r.URL.Query().Get("tz"))
	if err != nil {
		logger.LogAttrs(r.Context(), slog.LevelWarn, "Invalid timezone", slog.String("timezone", r.URL.Query().Get("tz")), slog.Any("error", err))
		http.Error(w, "Invalid timezone", http.StatusBadRequest)
		return nil, nil, false
	}
	columns, err := parseColumns(r.URL.Query().Get("columns"))
	if err != nil {
		http.Error(w, "Invalid columns", http.StatusBadRequest)
		return nil, nil, false
	}
	logger.LogAttrs(r.Context(), slog.LevelDebug, "Columns from query", slog.Any("columns", columns))
	return loc, columns, true
}

func current(w http.ResponseWriter, r *http.Request, service Service, logger *slog.Logger) (map[ruuvitag.Address]ruuvitag.Measurement, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	measurements, err := service.Current(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.LogAttrs(r.Context(), slog.LevelError, "Timeout while reading measurements", slog.Any("error", err))
		http.Error(w, "Timeout while reading measurements", http.StatusBadGateway)
		return nil, false
	case err == nil:
	default:
		logger.LogAttrs(r.Context(), slog.LevelError, "Error while reading measurements", slog.Any("error", err))
		http.Error(w, "Error while reading measurements", http.StatusInternalServerError)
		return nil, false
	}
	return measurements, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.LogAttrs(r.Context(), slog.LevelError, "Error while writing output", slog.Any("error", err))
	}
}

func parseLocation(tz string) (loc *time.Location, err error) {
	if tz != "" {
		loc, err = time.LoadLocation(tz)
		return
	}
	loc = time.UTC
	return
}

func parseColumns(columns string) ([]string, error) {
	if columns == "" {
		return nil, nil
	}
	if !columnsPattern.MatchString(columns) {
		return nil, fmt.Errorf("invalid columns: %s", columns)
	}
	return strings.Split(columns, ","), nil
}

// createResponse renders m with its timestamp in loc. If columns is not empty
// only the listed values are included.
func createResponse(m ruuvitag.Measurement, columns []string, loc *time.Location) map[string]any {
	values := m.Values()
	if ts, ok := values["time"].(time.Time); ok {
		values["time"] = ts.In(loc)
	}
	if len(columns) == 0 {
		return values
	}
	selected := make(map[string]any)
	for _, c := range columns {
		if v, ok := values[c]; ok {
			selected[c] = v
		}
	}
	return selected
}
