package chain

import (
	"net/url"
	"strconv"

	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// Option holds the endpoints used to reach one chain.
type Option struct {
	ID         ID     `json:"chainId" yaml:"chain_id"`
	RPCURL     string `json:"rpcUrl" yaml:"rpc_url"`
	RelayerURL string `json:"relayerUrl" yaml:"relayer_url"`
}

// Validate checks that the chain is known and the endpoints are usable URLs.
// An empty relayer URL is allowed; transactions cannot be sent on that chain.
func (o Option) Validate() error {
	if !o.ID.IsValid() {
		return qerr.WithDetails(qerr.ErrUnknownChain, map[string]string{
			"chain_id": strconv.FormatUint(uint64(o.ID), 10),
		})
	}
	if !validEndpoint(o.RPCURL) {
		return qerr.WithDetails(qerr.ErrConfiguration, map[string]string{
			"chain":   o.ID.String(),
			"rpc_url": o.RPCURL,
		})
	}
	if o.RelayerURL != "" && !validEndpoint(o.RelayerURL) {
		return qerr.WithDetails(qerr.ErrConfiguration, map[string]string{
			"chain":       o.ID.String(),
			"relayer_url": o.RelayerURL,
		})
	}
	return nil
}

func validEndpoint(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	// Bare names ("rpc1") are accepted so test doubles can use opaque endpoints.
	return u.Scheme == "" || u.Host != ""
}

// Options is an insertion-ordered set of chain options keyed by chain id.
// The zero value is ready to use.
type Options struct {
	order []ID
	byID  map[ID]Option
}

// NewOptions builds a set from opts, rejecting duplicates.
func NewOptions(opts ...Option) (*Options, error) {
	set := &Options{}
	for _, opt := range opts {
		if err := set.Add(opt); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Add registers opt. A second option for an already registered chain fails
// with ErrConfiguration rather than silently replacing the first.
func (o *Options) Add(opt Option) error {
	if err := opt.Validate(); err != nil {
		return err
	}
	if o.byID == nil {
		o.byID = make(map[ID]Option)
	}
	if _, exists := o.byID[opt.ID]; exists {
		return qerr.WithDetails(qerr.ErrConfiguration, map[string]string{
			"chain":  opt.ID.String(),
			"reason": "duplicate chain option",
		})
	}
	o.byID[opt.ID] = opt
	o.order = append(o.order, opt.ID)
	return nil
}

// Get returns the option registered for id.
func (o *Options) Get(id ID) (Option, bool) {
	if o == nil || o.byID == nil {
		return Option{}, false
	}
	opt, ok := o.byID[id]
	return opt, ok
}

// Has reports whether id is registered.
func (o *Options) Has(id ID) bool {
	_, ok := o.Get(id)
	return ok
}

// Len returns the number of registered chains.
func (o *Options) Len() int {
	if o == nil {
		return 0
	}
	return len(o.order)
}

// List returns the options in registration order.
func (o *Options) List() []Option {
	if o == nil {
		return nil
	}
	out := make([]Option, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.byID[id])
	}
	return out
}

// IDs returns the registered chain ids in registration order.
func (o *Options) IDs() []ID {
	if o == nil {
		return nil
	}
	out := make([]ID, len(o.order))
	copy(out, o.order)
	return out
}

// Clone returns an independent copy of the set.
func (o *Options) Clone() *Options {
	c := &Options{}
	for _, opt := range o.List() {
		if c.byID == nil {
			c.byID = make(map[ID]Option, o.Len())
		}
		c.byID[opt.ID] = opt
		c.order = append(c.order, opt.ID)
	}
	return c
}
