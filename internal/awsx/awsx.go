// Package awsx loads the shared AWS configuration and resolves secrets
// held in SSM Parameter Store.
package awsx

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// GetParameterAPI is the slice of the SSM client used here.
type GetParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Clients lazily loads the default AWS config on first use, so processes
// that never touch AWS do not need credentials.
type Clients struct {
	once sync.Once
	cfg  aws.Config
	err  error

	load func(ctx context.Context) (aws.Config, error)
}

func NewClients() *Clients {
	return &Clients{load: func(ctx context.Context) (aws.Config, error) {
		return config.LoadDefaultConfig(ctx)
	}}
}

// Config returns the shared config, loading it once.
func (c *Clients) Config(ctx context.Context) (aws.Config, error) {
	c.once.Do(func() {
		c.cfg, c.err = c.load(ctx)
		if c.err != nil {
			c.err = xerrors.Wrap(c.err, "load AWS config")
		}
	})
	return c.cfg, c.err
}

func (c *Clients) S3(ctx context.Context) (*s3.Client, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

func (c *Clients) SSM(ctx context.Context) (*ssm.Client, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, err
	}
	return ssm.NewFromConfig(cfg), nil
}

// ResolveParameter fetches a decrypted parameter value. Empty values are an
// error so a missing secret never becomes an empty connection string.
func ResolveParameter(ctx context.Context, api GetParameterAPI, name string) (string, error) {
	if name == "" {
		return "", xerrors.New("parameter name is required")
	}
	out, err := api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}

	v := strings.TrimSpace(*out.Parameter.Value)
	if v == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}
	return v, nil
}
