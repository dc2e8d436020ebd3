// Package vendorfactory maps a vendor name to its DataSource constructor,
// once, at startup — a closed set of concrete variants rather than a
// string-keyed dynamic dispatch table. This is the only package allowed to
// import both internal/adapter/vt and internal/adapter/vg, which keeps the
// adapter package itself free of a dependency cycle back onto its own
// variants.
package vendorfactory

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"quantbox/internal/adapter"
	"quantbox/internal/adapter/vg"
	"quantbox/internal/adapter/vt"
	"quantbox/internal/config"
	"quantbox/internal/kernel"
)

// Closer is implemented by adapters that hold a background worker
// (every vendorclient-backed adapter does).
type Closer interface {
	Close()
}

// Build constructs the DataSource for vendor, reading its token and rate
// limit from the registry. Returns the adapter plus a Closer to release
// its resources (they are the same object; Closer is separated only to
// keep main's shutdown path from depending on concrete types).
func Build(vendor string, reg *config.Registry, log zerolog.Logger) (adapter.DataSource, Closer, error) {
	token, _ := reg.VendorToken(vendor)
	tuning := reg.Tuning()
	rateLimit := tuning.VendorRateLimit[vendor]

	switch vendor {
	case kernel.VendorVT:
		a := vt.New(token, &http.Client{}, rateLimit, log)
		return a, a, nil
	case kernel.VendorVG:
		a, err := vg.New(token, &http.Client{}, rateLimit, log)
		if err != nil {
			return nil, nil, err
		}
		return a, a, nil
	default:
		return nil, nil, fmt.Errorf("vendorfactory: unknown vendor %q", vendor)
	}
}
