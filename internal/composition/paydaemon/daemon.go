package paydaemon

import (
	"context"

	"clearpay/go-backend/internal/adapters/rpc"
	"clearpay/go-backend/internal/bootstrap/payconfig"
)

// Daemon couples the payment service with its control surface.
type Daemon struct {
	Service *Service
	server  *rpc.Server
}

func NewDaemon(settings payconfig.Settings, opts Options) (*Daemon, error) {
	svc, err := BuildService(settings, opts)
	if err != nil {
		return nil, err
	}
	return &Daemon{
		Service: svc,
		server:  rpc.NewServer(settings.RPC.Addr, svc, settings.RPC.Token, svc.log),
	}, nil
}

// Run serves the control surface and the bring-up loop until ctx is done or
// either exits with an error.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- d.server.Run(ctx) }()
	go func() { errCh <- d.Service.Run(ctx) }()

	err := <-errCh
	cancel()
	<-errCh
	return err
}
