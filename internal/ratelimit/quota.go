package ratelimit

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// Quota allows Limit requests per Window.
type Quota struct {
	Limit  int
	Window time.Duration
}

func PerMinute(n int) Quota { return Quota{Limit: n, Window: time.Minute} }

func (q Quota) String() string { return fmt.Sprintf("%d/%s", q.Limit, q.Window) }

func (q Quota) validate() error {
	if q.Limit <= 0 {
		return xerrors.Newf("limit must be positive, got %d", q.Limit)
	}
	if q.Window <= 0 {
		return xerrors.Newf("window must be positive, got %s", q.Window)
	}
	return nil
}

type quotaFile struct {
	Routes map[string]struct {
		Limit  int    `yaml:"limit"`
		Window string `yaml:"window"`
	} `yaml:"routes"`
}

// LoadQuotas parses per-route overrides:
//
//	routes:
//	  /users:
//	    limit: 50
//	    window: 1m
//
// Keys are route names as passed to Limiter.Limit. Window defaults to 1m.
func LoadQuotas(r io.Reader) (map[string]Quota, error) {
	var f quotaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return map[string]Quota{}, nil
		}
		return nil, xerrors.Wrap(err, "decode rate limit config")
	}

	out := make(map[string]Quota, len(f.Routes))
	var errs []error
	for route, raw := range f.Routes {
		q := Quota{Limit: raw.Limit, Window: time.Minute}
		if raw.Window != "" {
			d, err := time.ParseDuration(raw.Window)
			if err != nil {
				errs = append(errs, xerrors.Wrapf(err, "route %s: window", route))
				continue
			}
			q.Window = d
		}
		if err := q.validate(); err != nil {
			errs = append(errs, xerrors.Wrapf(err, "route %s", route))
			continue
		}
		out[route] = q
	}
	if len(errs) > 0 {
		return nil, xerrors.Join(errs...)
	}
	return out, nil
}
