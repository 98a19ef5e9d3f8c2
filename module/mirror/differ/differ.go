// Package differ computes the ordered set of artifacts that must be built to
// bring a destination in line with a source.
package differ

import (
	"sort"

	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/module/mirror/util"
)

type options struct {
	denylist      *util.Denylist
	deferPrefixes []string
	resume        map[string]struct{}
}

type Option func(*options)

// WithDenylist drops every missing name the list denies.
func WithDenylist(d *util.Denylist) Option {
	return func(o *options) { o.denylist = d }
}

// WithDeferPrefixes moves names with one of the prefixes to the end of the work set.
func WithDeferPrefixes(prefixes ...string) Option {
	return func(o *options) { o.deferPrefixes = append(o.deferPrefixes, prefixes...) }
}

// WithResume moves names abandoned by an earlier run to the front of the work set.
func WithResume(names ...string) Option {
	return func(o *options) {
		if o.resume == nil {
			o.resume = make(map[string]struct{}, len(names))
		}
		for _, n := range names {
			o.resume[n] = struct{}{}
		}
	}
}

// Plan is the result of comparing two snapshots.
type Plan struct {
	// Work is the ordered work set: resumed names, then the regular band, then deferred names.
	Work []*types.WorkItem
	// Missing lists every name present at the source and absent at the destination,
	// denied ones included.
	Missing []string
	// Denied lists the missing names removed by the denylist.
	Denied []string
	// Resumed and Deferred count the items placed in the first and last band.
	Resumed  int
	Deferred int
}

// Names returns the names of the work set in order.
func (p *Plan) Names() []string {
	names := make([]string, 0, len(p.Work))
	for _, item := range p.Work {
		names = append(names, item.Name())
	}
	return names
}

// Compute selects every artifact whose key is present in source and absent in
// destination. The destination locator is never compared. Within each band the
// order is lexicographic by name, so equal inputs always give equal plans.
func Compute(source, destination *types.Snapshot, opts ...Option) *Plan {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	plan := &Plan{}
	var resumed, regular, deferred []*types.WorkItem
	for _, ref := range source.Refs() {
		if destination.Has(types.DiffKey(ref)) {
			continue
		}
		name := ref.Name()
		plan.Missing = append(plan.Missing, name)
		if o.denylist.Denied(name) {
			plan.Denied = append(plan.Denied, name)
			continue
		}
		item := types.NewWorkItem(ref)
		if _, ok := o.resume[name]; ok {
			resumed = append(resumed, item)
		} else if util.HasAnyPrefix(name, o.deferPrefixes) {
			deferred = append(deferred, item)
		} else {
			regular = append(regular, item)
		}
	}

	plan.Resumed = len(resumed)
	plan.Deferred = len(deferred)
	plan.Work = make([]*types.WorkItem, 0, len(resumed)+len(regular)+len(deferred))
	plan.Work = append(plan.Work, resumed...)
	plan.Work = append(plan.Work, regular...)
	plan.Work = append(plan.Work, deferred...)
	return plan
}

// ComputeWorkSet returns only the ordered work set of Compute.
func ComputeWorkSet(source, destination *types.Snapshot, opts ...Option) []*types.WorkItem {
	return Compute(source, destination, opts...).Work
}

// Present returns the names found on both sides, sorted.
func Present(source, destination *types.Snapshot) []string {
	var names []string
	for _, name := range source.Names() {
		if destination.Has(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
