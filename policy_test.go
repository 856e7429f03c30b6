package evmvc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func allow(ctx *FilterRuleCtx, next func(error)) { next(nil) }

func deny(err error) PolicyFunc {
	return func(ctx *FilterRuleCtx, next func(error)) { next(err) }
}

func TestFilterPolicyRunAllowsWhenEveryRuleAllows(t *testing.T) {
	p := NewFilterPolicy(allow, allow, allow)

	var called bool
	p.run(&FilterRuleCtx{}, func(err error) {
		called = true
		assert.NoError(t, err)
	})
	assert.True(t, called)
}

func TestFilterPolicyRunShortCircuitsOnDenial(t *testing.T) {
	errDenied := errors.New("denied")
	var ranThird bool

	p := NewFilterPolicy(allow, deny(errDenied), func(ctx *FilterRuleCtx, next func(error)) {
		ranThird = true
		next(nil)
	})

	var gotErr error
	p.run(&FilterRuleCtx{}, func(err error) { gotErr = err })

	assert.Equal(t, errDenied, gotErr)
	assert.False(t, ranThird)
}

func TestFilterPolicyNilRunsAllowsByDefault(t *testing.T) {
	var p *FilterPolicy

	var gotErr error
	p.run(&FilterRuleCtx{}, func(err error) { gotErr = err })
	assert.NoError(t, gotErr)
}

func TestFilterPolicyAppend(t *testing.T) {
	p := NewFilterPolicy(allow)
	errDenied := errors.New("denied")
	p.Append(deny(errDenied))

	var gotErr error
	p.run(&FilterRuleCtx{}, func(err error) { gotErr = err })
	assert.Equal(t, errDenied, gotErr)
}

func TestChainPoliciesOrderAndShortCircuit(t *testing.T) {
	var order []string
	track := func(name string) *FilterPolicy {
		return NewFilterPolicy(func(ctx *FilterRuleCtx, next func(error)) {
			order = append(order, name)
			next(nil)
		})
	}

	errDenied := errors.New("denied")
	policies := []*FilterPolicy{
		track("root"),
		NewFilterPolicy(deny(errDenied)),
		track("route"),
	}

	var gotErr error
	chainPolicies(policies, &FilterRuleCtx{}, func(err error) { gotErr = err })

	assert.Equal(t, errDenied, gotErr)
	assert.Equal(t, []string{"root"}, order)
}

func TestChainPoliciesEmptyAllows(t *testing.T) {
	var gotErr error
	chainPolicies(nil, &FilterRuleCtx{}, func(err error) { gotErr = err })
	assert.NoError(t, gotErr)
}
