package loops

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/ohsu-comp-bio/cascade/logger"
)

// pass collects the failures of one loop pass.
type pass struct {
	debug bool
	log   *logger.Logger

	mu   sync.Mutex
	errs *multierror.Error
}

func (l *Loops) pass(ctx context.Context, name string, debug bool) (context.Context, *pass) {
	ctx = context.WithValue(ctx, logger.LoopKey, name)
	return ctx, &pass{debug: debug, log: l.log.Sub(name)}
}

// fail records a per-item failure. It returns err in debug mode, so the
// caller stops, and nil otherwise.
func (p *pass) fail(err error, msg string, args ...interface{}) error {
	p.log.Error(msg, append(args, "error", err)...)
	p.mu.Lock()
	p.errs = multierror.Append(p.errs, err)
	p.mu.Unlock()
	if p.debug {
		return err
	}
	return nil
}

func (p *pass) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs.ErrorOrNil()
}
