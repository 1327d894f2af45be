// Package enforcement carries out a resolved decision: it blocks transfers,
// replaces sensitive spans in the text and reports the actions taken.
package enforcement

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/metrics"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// Action tags reported in EnforcementResult.ActionsTaken.
const (
	TagAlertCreated                 = "alert_created"
	TagBlockedByPolicyPrefix        = "blocked_by_policy_"
	TagEncryptedPrefix              = "encrypted_"
	TagAnonymizedPrefix             = "anonymized_"
	TagBlockServiceUnavailable      = "block_service_unavailable"
	TagEncryptionServiceUnavailable = "encryption_service_unavailable"
)

// Default collaborator timeouts.
const (
	DefaultBlockTimeout   = 5 * time.Second
	DefaultEncryptTimeout = 2 * time.Second
)

// Config bounds collaborator calls.
type Config struct {
	BlockTimeout   time.Duration
	EncryptTimeout time.Duration
}

// Executor applies decisions. It is safe for concurrent use when its
// collaborators are.
type Executor struct {
	blocker        Blocker
	encryptor      Encryptor
	blockTimeout   time.Duration
	encryptTimeout time.Duration
	logger         *security.Logger
	metrics        *metrics.Metrics
}

// NewExecutor wires an executor. m may be nil.
func NewExecutor(blocker Blocker, encryptor Encryptor, cfg Config, logger *security.Logger, m *metrics.Metrics) *Executor {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}
	if cfg.EncryptTimeout <= 0 {
		cfg.EncryptTimeout = DefaultEncryptTimeout
	}
	return &Executor{
		blocker:        blocker,
		encryptor:      encryptor,
		blockTimeout:   cfg.BlockTimeout,
		encryptTimeout: cfg.EncryptTimeout,
		logger:         logger,
		metrics:        m,
	}
}

// Execute performs decision against text. Collaborator failures never fail the
// call; they are reported as *_unavailable tags.
func (e *Executor) Execute(ctx context.Context, decision models.Decision, findings []models.Finding, text string, meta models.RequestMeta) models.EnforcementResult {
	switch decision.Action {
	case models.ActionBlock:
		return e.block(ctx, decision, meta)
	case models.ActionEncrypt, models.ActionAnonymize:
		return e.rewrite(ctx, decision, findings, text)
	case models.ActionAlert:
		return models.EnforcementResult{
			ActionsTaken: []string{TagAlertCreated},
			RedactedText: text,
		}
	default:
		return models.EnforcementResult{ActionsTaken: []string{}, RedactedText: text}
	}
}

func (e *Executor) block(ctx context.Context, decision models.Decision, meta models.RequestMeta) models.EnforcementResult {
	result := models.EnforcementResult{
		ActionsTaken: make([]string, 0, len(decision.Contributing)+1),
		Blocked:      true,
	}

	names := make([]string, 0, len(decision.Contributing))
	for _, mp := range decision.Contributing {
		result.ActionsTaken = append(result.ActionsTaken, TagBlockedByPolicyPrefix+mp.Name)
		names = append(names, mp.Name)
	}

	req := BlockRequest{
		SourceIP:     meta.SourceIP,
		SourceUser:   meta.SourceUser,
		SourceDevice: meta.SourceDevice,
		Policies:     names,
		EntityTypes:  contributingTypes(decision),
		Reason:       decision.Summary,
	}

	callCtx, cancel := context.WithTimeout(ctx, e.blockTimeout)
	defer cancel()

	var err error
	if e.blocker == nil {
		err = models.ErrCollaboratorUnavailable
	} else {
		err = e.blocker.Block(callCtx, req)
	}
	if err != nil {
		result.ActionsTaken = append(result.ActionsTaken, TagBlockServiceUnavailable)
		e.collaboratorFailed("blocker", meta, err)
	}
	return result
}

// edit is one replaced span, kept to report tags and refs in text order.
type edit struct {
	tag string
	ref *models.EncryptedRef
}

func (e *Executor) rewrite(ctx context.Context, decision models.Decision, findings []models.Finding, text string) models.EnforcementResult {
	encrypt := decision.Action == models.ActionEncrypt
	wanted := make(map[string]bool)
	for _, t := range contributingTypes(decision) {
		wanted[t] = true
	}

	targets := make([]models.Finding, 0, len(findings))
	for _, f := range findings {
		if wanted[f.EntityType] {
			targets = append(targets, f)
		}
	}
	// Right to left so earlier offsets stay valid after each replacement.
	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].Start != targets[j].Start {
			return targets[i].Start > targets[j].Start
		}
		return targets[i].End > targets[j].End
	})

	runes := []rune(text)
	edgeStart := len(runes) + 1 // start of the leftmost edited span
	var (
		edits       []edit
		unavailable bool
	)

	for _, f := range targets {
		if !f.ValidSpan(len(runes)) || f.End > edgeStart {
			continue
		}

		var (
			placeholder string
			ed          edit
		)
		if encrypt {
			placeholder = "[ENCRYPTED:" + f.EntityType + "]"
			ed.tag = TagEncryptedPrefix + f.EntityType

			callCtx, cancel := context.WithTimeout(ctx, e.encryptTimeout)
			ref, err := e.encryptValue(callCtx, string(runes[f.Start:f.End]))
			cancel()
			if err != nil {
				unavailable = true
				e.collaboratorFailed("encryptor", models.RequestMeta{}, err)
			} else {
				ed.ref = &models.EncryptedRef{EntityType: f.EntityType, Start: f.Start, End: f.End, Ref: ref}
			}
		} else {
			placeholder = "<" + f.EntityType + ">"
			ed.tag = TagAnonymizedPrefix + f.EntityType
		}

		runes = slices.Concat(runes[:f.Start], []rune(placeholder), runes[f.End:])
		edgeStart = f.Start
		edits = append(edits, ed)
	}

	result := models.EnforcementResult{
		ActionsTaken: make([]string, 0, len(edits)+1),
		RedactedText: string(runes),
		Modified:     len(edits) > 0,
	}
	for i := len(edits) - 1; i >= 0; i-- {
		result.ActionsTaken = append(result.ActionsTaken, edits[i].tag)
		if edits[i].ref != nil {
			result.EncryptedRefs = append(result.EncryptedRefs, *edits[i].ref)
		}
	}
	if unavailable {
		result.ActionsTaken = append(result.ActionsTaken, TagEncryptionServiceUnavailable)
	}
	return result
}

func (e *Executor) encryptValue(ctx context.Context, value string) (string, error) {
	if e.encryptor == nil {
		return "", models.ErrCollaboratorUnavailable
	}
	return e.encryptor.Encrypt(ctx, value)
}

func (e *Executor) collaboratorFailed(name string, meta models.RequestMeta, err error) {
	if e.metrics != nil {
		e.metrics.IncrementCollaboratorFailure(name)
	}
	if e.logger != nil {
		e.logger.SecurityEvent(security.EventCollaboratorUnavailable, meta.SourceUser, meta.SourceIP, meta.SourceDevice,
			map[string]interface{}{"collaborator": name, "error": err.Error()})
	}
}

// contributingTypes is the union of matched entity types over the contributing
// policies, in first-seen order.
func contributingTypes(decision models.Decision) []string {
	seen := make(map[string]bool)
	var types []string
	for _, mp := range decision.Contributing {
		for _, t := range mp.MatchedEntities {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	return types
}
