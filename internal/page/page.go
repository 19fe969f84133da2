// Package page keeps one session per visitor page view. A page owns the form
// manager and modal manager wired for it.
package page

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"siteforms/internal/config"
	"siteforms/internal/forms"
	"siteforms/internal/i18n"
	"siteforms/internal/modal"
)

var ErrNotFound = errors.New("page not found")

// ServiceModal is the modal that shows service details.
const ServiceModal = "service"

type Page struct {
	ID        string
	Language  language.Tag
	Forms     *forms.Manager
	Modals    *modal.Manager
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (p *Page) touch(now time.Time) {
	p.mu.Lock()
	p.lastSeen = now
	p.mu.Unlock()
}

func (p *Page) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// Form looks up a registered form by name.
func (p *Page) Form(name string) (*forms.Form, error) {
	return p.Forms.Form(name)
}

// FormStates snapshots every form on the page in name order.
func (p *Page) FormStates() []forms.State {
	names := p.Forms.Names()
	out := make([]forms.State, 0, len(names))
	for _, name := range names {
		if f, err := p.Forms.Form(name); err == nil {
			out = append(out, f.Snapshot())
		}
	}
	return out
}

// OpenService fills the service modal with the catalog entry and opens it.
// Unknown slugs leave the page untouched.
func (p *Page) OpenService(services map[string]config.Service, slug string) bool {
	svc, ok := services[slug]
	if !ok {
		return false
	}
	if !p.Modals.SetContent(ServiceModal, ServiceContent(svc)) {
		return false
	}
	return p.Modals.Open(ServiceModal)
}

// ServiceContent renders a catalog entry as plain modal content.
func ServiceContent(svc config.Service) modal.Content {
	var b strings.Builder
	b.WriteString(svc.Summary)
	for _, sec := range svc.Sections {
		b.WriteString("\n\n")
		b.WriteString(sec.Heading)
		for _, item := range sec.Items {
			b.WriteString("\n- ")
			b.WriteString(item)
		}
	}
	return modal.Content{Title: svc.Title, Body: strings.TrimSpace(b.String())}
}

type Options struct {
	Config    *config.Config
	Transport forms.Transport
	Clock     forms.Clock
	Logger    *slog.Logger
	IdleTTL   time.Duration
}

// Registry holds live pages.
type Registry struct {
	cfg       *config.Config
	rules     forms.Rules
	transport forms.Transport
	clock     forms.Clock
	logger    *slog.Logger
	idleTTL   time.Duration

	mu    sync.RWMutex
	pages map[string]*Page
}

func NewRegistry(opts Options) (*Registry, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	rules, err := opts.Config.Rules()
	if err != nil {
		return nil, err
	}
	r := &Registry{
		cfg:       opts.Config,
		rules:     rules,
		transport: opts.Transport,
		clock:     opts.Clock,
		logger:    opts.Logger,
		idleTTL:   opts.IdleTTL,
		pages:     make(map[string]*Page),
	}
	if r.clock == nil {
		r.clock = forms.SystemClock()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.transport == nil {
		r.transport = &forms.SimulatedTransport{Delay: opts.Config.Timing.SubmitDelay, Clock: r.clock, Logger: r.logger}
	}
	if r.idleTTL <= 0 {
		r.idleTTL = 30 * time.Minute
	}
	return r, nil
}

// Create starts a page for the given locale; empty locale uses the site
// default. Every configured form and modal is registered on it.
func (r *Registry) Create(locale string) *Page {
	if locale == "" {
		locale = r.cfg.Site.Locale
	}
	now := r.clock.Now()
	p := &Page{
		ID:        uuid.NewString(),
		Language:  i18n.Match(locale),
		Modals:    modal.NewManager(r.cfg.Modals...),
		CreatedAt: now,
		lastSeen:  now,
	}
	rules := r.rules
	p.Forms = forms.NewManager(forms.Options{
		Rules:           &rules,
		Transport:       r.transport,
		Modals:          p.Modals,
		Clock:           r.clock,
		Logger:          r.logger.With("page", p.ID),
		Language:        p.Language,
		SuccessTTL:      r.cfg.Timing.SuccessTTL,
		ModalCloseDelay: r.cfg.Timing.ModalCloseDelay,
	})
	for _, def := range r.cfg.FormDefinitions() {
		p.Forms.Register(def.Name, forms.NewForm(def))
	}

	r.mu.Lock()
	r.pages[p.ID] = p
	r.mu.Unlock()
	r.logger.Debug("page created", "page", p.ID, "lang", p.Language.String())
	return p
}

// Get returns a live page and marks it as seen.
func (r *Registry) Get(id string) (*Page, error) {
	r.mu.RLock()
	p, ok := r.pages[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.touch(r.clock.Now())
	return p, nil
}

func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pages[id]; !ok {
		return false
	}
	delete(r.pages, id)
	return true
}

// Len reports how many page sessions are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}

// IDs lists live page ids in lexical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.pages))
	for id := range r.pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep evicts pages idle longer than the TTL and returns how many went.
func (r *Registry) Sweep() int {
	cutoff := r.clock.Now().Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, p := range r.pages {
		if p.LastSeen().Before(cutoff) {
			delete(r.pages, id)
			n++
		}
	}
	if n > 0 {
		r.logger.Info("evicted idle pages", "count", n, "live", len(r.pages))
	}
	return n
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
