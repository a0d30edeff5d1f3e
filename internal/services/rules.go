package services

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/repos"
	"github.com/yungbote/farmguard-backend/internal/types"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_\.]+)\s*\}\}`)

// RuleService is the read-only rule store consulted at alert-creation and
// escalation time. Lookups never fail an alert: missing rules degrade to
// defaults and a warning.
type RuleService interface {
	ResolveChannels(ctx context.Context, farmID uuid.UUID, severity types.Severity) []types.ChannelKind
	ResolveRecipients(ctx context.Context, farmID uuid.UUID, severity types.Severity, alertType types.AlertType) ([]uuid.UUID, bool, error)
	ResolveMessage(ctx context.Context, alertType types.AlertType, severity types.Severity, explicit, explicitTts string, vars map[string]string) (string, string)
	EscalationSteps(ctx context.Context, farmID uuid.UUID, severity types.Severity) ([]types.EscalationStep, error)
}

type ruleService struct {
	db         *gorm.DB
	log        *logger.Logger
	rules      repos.AlertRuleRepo
	recipients repos.AlertRecipientRepo
	templates  repos.AlertTemplateRepo
	escalation repos.EscalationRuleRepo
}

func NewRuleService(db *gorm.DB, baseLog *logger.Logger, rules repos.AlertRuleRepo, recipients repos.AlertRecipientRepo, templates repos.AlertTemplateRepo, escalation repos.EscalationRuleRepo) RuleService {
	return &ruleService{
		db:         db,
		log:        baseLog.With("service", "RuleService"),
		rules:      rules,
		recipients: recipients,
		templates:  templates,
		escalation: escalation,
	}
}

// ResolveChannels returns the farm's configured channels for a severity, or
// the minimal dashboard-only default when no active rule exists. An alert is
// never silently dropped for lack of configuration.
func (s *ruleService) ResolveChannels(ctx context.Context, farmID uuid.UUID, severity types.Severity) []types.ChannelKind {
	rule, err := s.rules.GetActive(ctx, nil, farmID, severity)
	if err != nil {
		s.log.Warn("alert rule lookup failed, using default channels", "farm_id", farmID, "severity", severity, "error", err)
		return []types.ChannelKind{types.ChannelDashboard}
	}
	if rule == nil {
		s.log.Warn("no active alert rule, using default channels", "farm_id", farmID, "severity", severity)
		return []types.ChannelKind{types.ChannelDashboard}
	}
	var channels []types.ChannelKind
	if err := json.Unmarshal(rule.Channels, &channels); err != nil || len(channels) == 0 {
		s.log.Warn("alert rule has unreadable channels, using default", "farm_id", farmID, "severity", severity, "error", err)
		return []types.ChannelKind{types.ChannelDashboard}
	}
	return channels
}

// ResolveRecipients unions the user sets of every matching recipient group.
// External emergency targets are eligible only when at least one matching
// group opted in.
func (s *ruleService) ResolveRecipients(ctx context.Context, farmID uuid.UUID, severity types.Severity, alertType types.AlertType) ([]uuid.UUID, bool, error) {
	groups, err := s.recipients.ListMatching(ctx, nil, farmID, severity, alertType)
	if err != nil {
		return nil, false, err
	}
	seen := make(map[uuid.UUID]bool)
	var userIDs []uuid.UUID
	includeExternal := false
	for _, g := range groups {
		if g.IncludeExternal {
			includeExternal = true
		}
		var ids []uuid.UUID
		if err := json.Unmarshal(g.UserIDs, &ids); err != nil {
			s.log.Warn("recipient group has unreadable user ids", "group_id", g.ID, "error", err)
			continue
		}
		for _, id := range ids {
			if id == uuid.Nil || seen[id] {
				continue
			}
			seen[id] = true
			userIDs = append(userIDs, id)
		}
	}
	return userIDs, includeExternal, nil
}

// ResolveMessage prefers caller-supplied text; otherwise it renders the
// (type, severity) template. Placeholders without a matching variable stay
// verbatim in the output.
func (s *ruleService) ResolveMessage(ctx context.Context, alertType types.AlertType, severity types.Severity, explicit, explicitTts string, vars map[string]string) (string, string) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, explicitTts
	}
	tmpl, err := s.templates.Get(ctx, nil, alertType, severity)
	if err != nil || tmpl == nil {
		if err != nil {
			s.log.Warn("alert template lookup failed", "alert_type", alertType, "severity", severity, "error", err)
		}
		return string(alertType) + " " + string(severity) + " alert", ""
	}
	return renderTemplate(tmpl.Body, vars), renderTemplate(tmpl.BodyTts, vars)
}

func (s *ruleService) EscalationSteps(ctx context.Context, farmID uuid.UUID, severity types.Severity) ([]types.EscalationStep, error) {
	rule, err := s.escalation.GetActive(ctx, nil, farmID, severity)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, nil
	}
	steps, err := rule.DecodeSteps()
	if err != nil {
		s.log.Warn("escalation rule has invalid steps, ignoring chain", "rule_id", rule.ID, "error", err)
		return nil, nil
	}
	return steps, nil
}

func renderTemplate(body string, vars map[string]string) string {
	if body == "" {
		return ""
	}
	return placeholderRe.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		return match
	})
}
