package recast

import (
	"strings"
	"time"
)

// Reason names the predicate that rejected a post or account.
type Reason string

const (
	ReasonTestAccount   Reason = "test_account"
	ReasonSkipListed    Reason = "skip_listed"
	ReasonIsRecast      Reason = "is_recast"
	ReasonStale         Reason = "stale"
	ReasonReply         Reason = "reply"
	ReasonAlreadyRecast Reason = "already_recast"
	ReasonVerification  Reason = "verification_post"
)

// Candidate is everything a predicate may look at.
type Candidate struct {
	Post     Post
	Account  Account
	Entry    IndexEntry
	HasEntry bool
	// Recasted is set when this exact post is already in the index.
	Recasted bool
	Now      time.Time
}

func (c Candidate) handle() string {
	if c.Account.Handle != "" {
		return c.Account.Handle
	}
	return c.Post.AuthorHandle
}

// Predicate is one pure accept test in the chain.
type Predicate struct {
	Reason Reason
	Allow  func(c Candidate) bool
}

// FilterChain is an ordered AND of predicates. Evaluation stops at the first
// rejection; since predicates are pure, order only affects which reason is
// reported.
type FilterChain struct {
	predicates []Predicate
	testPrefix string
	skip       map[string]struct{}
}

// NewFilterChain builds the eligibility chain for cfg.
func NewFilterChain(cfg Config) *FilterChain {
	f := &FilterChain{
		testPrefix: normalizeHandle(cfg.TestHandlePrefix),
		skip:       make(map[string]struct{}, len(cfg.SkipHandles)),
	}
	for _, h := range cfg.SkipHandles {
		if h = normalizeHandle(h); h != "" {
			f.skip[h] = struct{}{}
		}
	}
	castWindow := cfg.CastWindow
	verification := cfg.VerificationPrefix

	f.predicates = []Predicate{
		{ReasonTestAccount, func(c Candidate) bool { return !f.isTestHandle(c.handle()) }},
		{ReasonSkipListed, func(c Candidate) bool { return !f.isSkipListed(c.handle()) }},
		{ReasonIsRecast, func(c Candidate) bool { return !c.Post.IsRecast }},
		{ReasonStale, func(c Candidate) bool { return !c.Post.PublishedAt.Before(c.Now.Add(-castWindow)) }},
		{ReasonReply, func(c Candidate) bool { return !c.Post.IsReply() }},
		{ReasonAlreadyRecast, func(c Candidate) bool {
			return !c.Recasted && (!c.HasEntry || c.Post.PublishedAt.After(c.Entry.LastTimestamp))
		}},
		{ReasonVerification, func(c Candidate) bool {
			return verification == "" || !strings.HasPrefix(c.Post.Text, verification)
		}},
	}
	return f
}

// Evaluate runs the chain and returns the first failing reason, if any.
func (f *FilterChain) Evaluate(post Post, account Account, index Index, now time.Time) (bool, Reason) {
	authorID := post.AuthorID
	if authorID == "" {
		authorID = account.ID
	}
	entry, ok := index.Lookup(authorID)
	c := Candidate{Post: post, Account: account, Entry: entry, HasEntry: ok, Recasted: index.Recasted(post.ID), Now: now}

	for _, p := range f.predicates {
		if !p.Allow(c) {
			return false, p.Reason
		}
	}
	return true, ""
}

// IsEligible reports whether every predicate accepts the post.
func (f *FilterChain) IsEligible(post Post, account Account, index Index, now time.Time) bool {
	ok, _ := f.Evaluate(post, account, index, now)
	return ok
}

// SkipAccount applies the account-level predicates so an excluded account's
// history is never fetched.
func (f *FilterChain) SkipAccount(account Account) (Reason, bool) {
	switch {
	case f.isTestHandle(account.Handle):
		return ReasonTestAccount, true
	case f.isSkipListed(account.Handle):
		return ReasonSkipListed, true
	}
	return "", false
}

func (f *FilterChain) isTestHandle(handle string) bool {
	return f.testPrefix != "" && strings.HasPrefix(normalizeHandle(handle), f.testPrefix)
}

func (f *FilterChain) isSkipListed(handle string) bool {
	_, ok := f.skip[normalizeHandle(handle)]
	return ok
}
