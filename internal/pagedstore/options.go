package pagedstore

import "errors"

// Option is a functional option for configuring a [Store].
type Option func(*Options)

// Options holds the configuration for a [Store]. Use [Option] functions to
// customise the defaults.
type Options struct {
	defaultQueryLimit int32
	api               API
}

func newOptions() *Options {
	return &Options{
		defaultQueryLimit: 50,
	}
}

func (o *Options) validate() error {
	if o.defaultQueryLimit < 1 {
		return errors.New("default query limit must be greater than zero")
	}

	return nil
}

// WithDefaultQueryLimit sets the page size applied when a [Query] does not
// specify a limit. The default is 50. The value must be greater than zero.
func WithDefaultQueryLimit(limit int32) Option {
	return func(o *Options) {
		o.defaultQueryLimit = limit
	}
}

// WithAPI sets a custom [API] implementation. This is useful when a custom
// DynamoDB configuration is required, or for injecting mocks in tests.
func WithAPI(api API) Option {
	return func(o *Options) {
		o.api = api
	}
}
