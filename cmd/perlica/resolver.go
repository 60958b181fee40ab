package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/perlica/perlica/internal/dispatcher"
	"github.com/perlica/perlica/internal/policy"
)

// stdinResolver prompts the operator on stdin/stdout for each Ask-tier tool
// call, offering a one-shot allow/deny and an optional "always" answer that
// persists the disposition so future calls to the same tool skip the prompt.
type stdinResolver struct {
	in  *bufio.Reader
	out io.Writer
}

func newStdinResolver(in io.Reader, out io.Writer) *stdinResolver {
	return &stdinResolver{in: bufio.NewReader(in), out: out}
}

func (r *stdinResolver) Resolve(ctx context.Context, call dispatcher.Call) (dispatcher.ResolverDecision, error) {
	fmt.Fprintf(r.out, "approval requested: tool=%s risk=%s summary=%q\n", call.ToolID, call.RiskTier, call.Summary)
	fmt.Fprint(r.out, "allow this call? [y]es / [n]o / [A]lways allow / [D]eny always: ")

	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return dispatcher.ResolverDecision{Allow: false, Reason: "no response"}, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return dispatcher.ResolverDecision{Allow: true}, nil
	case "a", "always":
		return dispatcher.ResolverDecision{Allow: true, PersistPolicy: policy.AlwaysAllow}, nil
	case "d", "deny-always", "always-deny":
		return dispatcher.ResolverDecision{Allow: false, PersistPolicy: policy.AlwaysDeny, Reason: "denied always by operator"}, nil
	default:
		return dispatcher.ResolverDecision{Allow: false, Reason: "denied by operator"}, nil
	}
}

var _ dispatcher.ApprovalResolver = (*stdinResolver)(nil)
