package odoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"odoo-rpa/internal/config"
	"odoo-rpa/pkg/apperr"
	"odoo-rpa/pkg/logg"
	"odoo-rpa/pkg/tracing"
	"strings"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	rpcClientName = "RPCClient"
	rpcTracer     = "odoo.rpc"
)

var ErrAuthenticationFailed = errors.New("odoo rejected the credentials")

// RPCClient counts records through Odoo's external XML-RPC API. It
// authenticates lazily on first use and keeps the object endpoint open.
type RPCClient struct {
	url       string
	db        string
	login     string
	password  string
	enabled   bool
	timeout   time.Duration
	transport *http.Transport
	logger    *zap.Logger
	tracer    trace.Tracer

	mu     sync.Mutex
	uid    int64
	object *xmlrpc.Client
}

type RPCParams struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewRPCClient(params RPCParams) *RPCClient {
	odooConfig := params.Config.OdooConfig

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = odooConfig.RPCTimeout

	return &RPCClient{
		url:       strings.TrimRight(odooConfig.URL, "/"),
		db:        odooConfig.Database,
		login:     odooConfig.Login,
		password:  odooConfig.Password,
		enabled:   odooConfig.RPCEnabled && odooConfig.Database != "" && odooConfig.ValidateSession() == nil,
		timeout:   odooConfig.RPCTimeout,
		transport: transport,
		logger:    params.Logger.With(zap.String(logg.Layer, rpcClientName)),
		tracer:    otel.Tracer(rpcTracer),
	}
}

// Enabled reports whether the API is configured. The report skips server
// counters when it is not.
func (c *RPCClient) Enabled() bool {
	return c.enabled
}

// Count runs search_count on model with the given domain.
func (c *RPCClient) Count(ctx context.Context, model string, domain []any) (count int64, err error) {
	const op = "Count"
	logger := c.logger.With(zap.String(logg.Operation, op), zap.String("model", model))

	ctx, step := tracing.StartSpan(ctx, c.tracer, logger, op, attribute.String("model", model))
	defer func() {
		step.End(err)
	}()

	if !c.enabled {
		return 0, apperr.WrapErrorWithReason(op, apperr.CodeUnavailable, "rpc_disabled")
	}

	if model == "" {
		return 0, apperr.InvalidReqError(op, "model", errors.New("model is empty"))
	}

	if domain == nil {
		domain = []any{}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.executeKW(ctx, model, "search_count", []any{domain}, &count); err != nil {
		return 0, apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "search_count_failed",
			apperr.MetaStage:  apperr.StageRPC,
		})
	}

	logger.Debug("Counted records", zap.Int64("count", count))

	return count, nil
}

func (c *RPCClient) connection(ctx context.Context) (int64, *xmlrpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.uid != 0 && c.object != nil {
		return c.uid, c.object, nil
	}

	common, err := xmlrpc.NewClient(c.url+"/xmlrpc/2/common", c.transport)
	if err != nil {
		return 0, nil, fmt.Errorf("connect common endpoint: %w", err)
	}
	defer common.Close()

	var reply any
	if err := call(ctx, common, "authenticate", []any{c.db, c.login, c.password, map[string]any{}}, &reply); err != nil {
		return 0, nil, fmt.Errorf("authenticate: %w", err)
	}

	uid, ok := reply.(int64)
	if !ok || uid == 0 {
		return 0, nil, ErrAuthenticationFailed
	}

	object, err := xmlrpc.NewClient(c.url+"/xmlrpc/2/object", c.transport)
	if err != nil {
		return 0, nil, fmt.Errorf("connect object endpoint: %w", err)
	}

	c.uid = uid
	c.object = object
	c.logger.Info("Authenticated with Odoo API", zap.Int64("uid", uid))

	return uid, object, nil
}

func (c *RPCClient) executeKW(ctx context.Context, model, method string, args []any, reply any) error {
	uid, object, err := c.connection(ctx)
	if err != nil {
		return err
	}

	params := []any{c.db, uid, c.password, model, method, args, map[string]any{}}

	return call(ctx, object, "execute_kw", params, reply)
}

// Close releases the object endpoint and idle connections.
func (c *RPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	defer c.transport.CloseIdleConnections()

	if c.object == nil {
		return nil
	}

	err := c.object.Close()
	c.object = nil
	c.uid = 0

	return err
}

// call runs a blocking XML-RPC call and gives up when ctx ends. The call
// itself keeps running until the transport timeout.
func call(ctx context.Context, client *xmlrpc.Client, method string, args any, reply any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- client.Call(method, args, reply)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
