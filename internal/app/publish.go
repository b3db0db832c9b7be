package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"comlinepm/internal/types"
)

const defaultLoginMethod = "ssh"

// Publish pushes a built package to every named registry concurrently. Each
// registry succeeds or fails on its own; the returned error aggregates every
// failure, in request order, as a *types.PublishError. An empty registry
// list publishes nothing and succeeds.
func (s Service) Publish(ctx context.Context, bc types.BuildContext, registries []string) (PublishReport, error) {
	built, ok := asBuilt(bc)
	if !ok {
		return PublishReport{}, &types.PublishError{Kind: types.ErrPublishNotBuilt}
	}
	upload, err := uploadFor(built)
	if err != nil {
		return PublishReport{}, &types.PublishError{Kind: types.ErrPublishNotBuilt, Err: err}
	}
	report := PublishReport{Namespace: upload.Namespace, Version: upload.Version}

	names := uniqueRegistryNames(registries)
	if len(names) == 0 {
		log.Ctx(ctx).Debug().Str("namespace", upload.Namespace).Msg("no registries requested")
		return report, nil
	}

	if s.PublishOpts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.PublishOpts.Timeout)
		defer cancel()
	}
	ctx, span := s.tracer().Start(ctx, "publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", upload.Namespace),
		attribute.String("version", upload.Version),
		attribute.Int("registries", len(names)),
	)

	results := make([]RegistryResult, len(names))
	var g errgroup.Group
	g.SetLimit(s.publishWorkers())
	for i, name := range names {
		g.Go(func() error {
			results[i] = s.publishOne(ctx, name, upload)
			return nil
		})
	}
	_ = g.Wait()
	report.Results = results

	var failures []*types.PublishError
	for _, result := range results {
		var pubErr *types.PublishError
		if result.Err != nil && errors.As(result.Err, &pubErr) {
			failures = append(failures, pubErr)
		}
	}
	if len(failures) > 0 {
		aggregate := &types.PublishError{
			Kind:      types.ErrPublishPerRegistryFailures,
			Failures:  failures,
			Attempted: len(names),
		}
		span.RecordError(aggregate)
		span.SetStatus(codes.Error, aggregate.Kind.Error())
		return report, aggregate
	}
	log.Ctx(ctx).Info().
		Str("namespace", upload.Namespace).
		Str("version", upload.Version).
		Strs("registries", names).
		Msg("package published")
	return report, nil
}

func (s Service) publishOne(ctx context.Context, name string, upload types.PackageUpload) RegistryResult {
	ctx, span := s.tracer().Start(ctx, "publish.registry")
	defer span.End()
	span.SetAttributes(attribute.String("registry", name))

	started := s.now()
	receipt, err := s.pushTo(ctx, name, upload)
	result := RegistryResult{
		Registry: name,
		Outcome:  types.PublishOutcomeSuccess,
		Receipt:  receipt,
		Duration: s.now().Sub(started),
	}
	if err != nil {
		result.Outcome = types.PublishOutcomeFailure
		var pubErr *types.PublishError
		if errors.As(err, &pubErr) && pubErr.Kind == types.ErrPublishTimeout {
			result.Outcome = types.PublishOutcomeTimeout
		}
		result.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, string(result.Outcome))
		log.Ctx(ctx).Debug().Err(err).Str("registry", name).Msg("publish failed")
	}
	s.Metrics.Observe(name, result.Outcome, result.Duration)
	return result
}

func (s Service) pushTo(ctx context.Context, name string, upload types.PackageUpload) (types.PushReceipt, error) {
	target, found, err := s.Registries.Lookup(name)
	if err != nil {
		return types.PushReceipt{}, &types.PublishError{Kind: types.ErrPublishUnknownRegistry, Registry: name, Err: err}
	}
	if !found {
		return types.PushReceipt{}, &types.PublishError{Kind: types.ErrPublishUnknownRegistry, Registry: name, Err: configuredRegistries(s.Registries.Names())}
	}

	session, err := s.ensureSession(ctx, target)
	if err != nil {
		return types.PushReceipt{}, registryFailure(ctx, types.ErrPublishAuthFailed, name, err)
	}
	publisher, err := s.Publishers.PublisherFor(target)
	if err != nil {
		return types.PushReceipt{}, &types.PublishError{Kind: types.ErrPublishPushFailed, Registry: name, Err: err}
	}
	receipt, err := publisher.Push(ctx, target, session, upload)
	if err != nil {
		return types.PushReceipt{}, registryFailure(ctx, types.ErrPublishPushFailed, name, err)
	}
	if receipt.Registry == "" {
		receipt.Registry = name
	}
	log.Ctx(ctx).Debug().
		Str("registry", name).
		Str("location", receipt.Location).
		Msg("package pushed")
	return receipt, nil
}

// ensureSession reuses a cached session that is still valid and otherwise
// logs in with the registry's configured method. Only a successful login is
// stored.
func (s Service) ensureSession(ctx context.Context, target types.RegistryTarget) (types.Session, error) {
	if session, ok := s.Sessions.Get(target.Name); ok && session.Valid(s.now()) {
		return session, nil
	}
	if s.Auth == nil {
		return types.Session{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("no authenticator configured")
	}
	method := strings.TrimSpace(target.Method)
	if method == "" {
		method = defaultLoginMethod
	}
	var secret types.Secret
	if s.Credentials != nil {
		secret, _ = s.Credentials.Credential(method)
	}
	session, err := s.Auth.Login(ctx, method, types.LoginRequest{
		Registry:   target,
		Target:     target.LoginTarget(),
		Credential: types.NewCredential(method, secret, time.Time{}),
	})
	if err != nil {
		return types.Session{}, err
	}
	s.Sessions.Put(session)
	return session, nil
}

// registryFailure reports kind, or ErrPublishTimeout once the publish
// deadline has passed.
func registryFailure(ctx context.Context, kind error, registry string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = types.ErrPublishTimeout
	}
	return &types.PublishError{Kind: kind, Registry: registry, Err: err}
}

func asBuilt(bc types.BuildContext) (types.Built, bool) {
	switch b := bc.(type) {
	case types.Built:
		return b, true
	case *types.Built:
		if b != nil {
			return *b, true
		}
	}
	return types.Built{}, false
}

func uploadFor(built types.Built) (types.PackageUpload, error) {
	namespace, err := built.Config.Namespace()
	if err != nil {
		return types.PackageUpload{}, err
	}
	version, err := built.Config.Version()
	if err != nil {
		return types.PackageUpload{}, err
	}
	archive, ok := built.PrimaryArtifact()
	if !ok {
		return types.PackageUpload{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("build produced no artifacts")
	}
	frozen, err := built.Config.Canonical()
	if err != nil {
		return types.PackageUpload{}, err
	}
	return types.PackageUpload{
		Namespace: namespace,
		Version:   version,
		Archive:   archive,
		Frozen:    frozen,
	}, nil
}

// configuredRegistries lists what an unknown name could have meant.
func configuredRegistries(names []string) error {
	if len(names) == 0 {
		return errors.New("no registries are configured")
	}
	return fmt.Errorf("configured registries: %s", strings.Join(names, ", "))
}

func uniqueRegistryNames(registries []string) []string {
	seen := make(map[string]struct{}, len(registries))
	names := make([]string, 0, len(registries))
	for _, raw := range registries {
		name := types.RegistryKey(raw)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// PublishDeadline converts a seconds setting into a publish timeout.
func PublishDeadline(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
