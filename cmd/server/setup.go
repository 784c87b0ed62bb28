package main

import (
	"context"
	"os"

	"github.com/keithlinneman/linnemanlabs-api/internal/awsx"
	"github.com/keithlinneman/linnemanlabs-api/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-api/internal/filestore"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-api/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-api/internal/store"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// openUserStore returns the configured store and a func releasing it.
func openUserStore(ctx context.Context, L log.Logger, conf cfg.App, aws *awsx.Clients) (store.UserStore, func(), error) {
	switch conf.Store {
	case cfg.StorePostgres:
		url := conf.DatabaseURL
		if url == "" {
			client, err := aws.SSM(ctx)
			if err != nil {
				return nil, nil, err
			}
			url, err = awsx.ResolveParameter(ctx, client, conf.DatabaseURLSSMParam)
			if err != nil {
				return nil, nil, xerrors.Wrap(err, "resolve database url")
			}
			L.Info(ctx, "database url resolved from ssm", "param", conf.DatabaseURLSSMParam)
		}
		pg, err := store.OpenPostgres(ctx, url, L)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() {
			if err := pg.Close(); err != nil {
				L.Warn(context.Background(), "close postgres", "err", err)
			}
		}, nil
	default:
		return store.NewMemory(store.DefaultSeed()...), func() {}, nil
	}
}

// openFileStore prefers S3 when a bucket is configured.
func openFileStore(ctx context.Context, conf cfg.App, aws *awsx.Clients) (filestore.Store, error) {
	if conf.UploadS3Bucket != "" {
		client, err := aws.S3(ctx)
		if err != nil {
			return nil, err
		}
		return filestore.NewS3(client, conf.UploadS3Bucket, conf.UploadS3Prefix)
	}
	return filestore.NewDir(conf.UploadDir)
}

// newLimiter builds the per-client limiter with optional per-route overrides
// read from conf.RateLimitConfig.
func newLimiter(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics) (*ratelimit.Limiter, error) {
	opts := []ratelimit.Option{
		ratelimit.WithLogger(L),
		ratelimit.WithMaxKeys(conf.RateLimitMaxKeys),
		ratelimit.WithSweepInterval(conf.RateLimitSweep),
		ratelimit.WithOnDenied(m.IncRateLimitDenied),
		// logged once per client and route until its bucket expires
		ratelimit.WithOnFirstDenied(logRateLimited),
		ratelimit.WithOnCapacity(m.IncRateLimitCapacity),
	}

	if conf.RateLimitConfig != "" {
		f, err := os.Open(conf.RateLimitConfig)
		if err != nil {
			return nil, xerrors.Wrap(err, "open rate limit config")
		}
		defer f.Close()
		quotas, err := ratelimit.LoadQuotas(f)
		if err != nil {
			return nil, err
		}
		for route, q := range quotas {
			L.Info(ctx, "rate limit override", "route", route, "quota", q.String())
		}
		opts = append(opts, ratelimit.WithQuotas(quotas))
	}

	l := ratelimit.New(ctx, opts...)
	m.TrackRateLimitBuckets(l.Len)
	return l, nil
}

// logRateLimited logs through the request logger so the line carries the
// request's correlation id and fields.
func logRateLimited(ctx context.Context, ip, route string) {
	log.FromContext(ctx).Warn(ctx, "rate limit triggered", "client.address", ip, "http.route", route)
}
