package blocker

import (
	"context"

	"github.com/jroosing/hydrablock/internal/interceptor"
	"github.com/jroosing/hydrablock/internal/messaging"
)

// Register installs a handler for every coordinator action on d.
func (b *Blocker) Register(d *messaging.Dispatcher) {
	ok := messaging.SuccessResponse{Success: true}

	d.Handle(messaging.ActionGetStats, func(context.Context, messaging.Request) (any, error) {
		return b.Stats(), nil
	})
	d.Handle(messaging.ActionToggleEnabled, func(context.Context, messaging.Request) (any, error) {
		return messaging.EnabledResponse{Enabled: b.ToggleEnabled()}, nil
	})
	d.Handle(messaging.ActionGetEnabled, func(context.Context, messaging.Request) (any, error) {
		return messaging.EnabledResponse{Enabled: b.Enabled()}, nil
	})

	d.Handle(messaging.ActionAddToWhitelist, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.DomainRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		if _, err := b.AddToWhitelist(in.Domain); err != nil {
			return nil, err
		}
		return ok, nil
	})
	d.Handle(messaging.ActionRemoveFromWhitelist, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.DomainRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		b.RemoveFromWhitelist(in.Domain)
		return ok, nil
	})
	d.Handle(messaging.ActionGetWhitelist, func(context.Context, messaging.Request) (any, error) {
		return messaging.WhitelistResponse{Whitelist: b.Whitelist()}, nil
	})

	d.Handle(messaging.ActionAddCustomFilter, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.FilterRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		if _, err := b.AddCustomFilter(in.Filter); err != nil {
			return nil, err
		}
		return ok, nil
	})
	d.Handle(messaging.ActionRemoveCustomFilter, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.FilterRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		b.RemoveCustomFilter(in.Filter)
		return ok, nil
	})
	d.Handle(messaging.ActionUpdateCustomFilters, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.FiltersRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		b.UpdateCustomFilters(in.Filters)
		return ok, nil
	})
	d.Handle(messaging.ActionGetCustomFilters, func(context.Context, messaging.Request) (any, error) {
		return messaging.FiltersResponse{Filters: b.CustomFilters()}, nil
	})

	d.Handle(messaging.ActionAddDynamicRule, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.DynamicRuleRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		action := interceptor.ActionBlock
		if in.Action != "" {
			a, err := interceptor.ParseAction(in.Action)
			if err != nil {
				return nil, err
			}
			action = a
		}
		r, err := b.AddDynamicRule(in.Pattern, in.ResourceTypes, action)
		if err != nil {
			return nil, err
		}
		return messaging.RuleResponse{Success: true, ID: r.ID}, nil
	})
	d.Handle(messaging.ActionRemoveDynamicRule, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.RuleIDRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		return messaging.SuccessResponse{Success: b.RemoveDynamicRule(in.RuleID)}, nil
	})
	d.Handle(messaging.ActionGetDynamicRules, func(context.Context, messaging.Request) (any, error) {
		return messaging.DynamicRulesResponse{Rules: b.DynamicRules()}, nil
	})

	d.Handle(messaging.ActionBlockDomain, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.URLRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		domain, id, err := b.BlockDomain(in.URL)
		if err != nil {
			return nil, err
		}
		return messaging.DomainResponse{Success: true, Domain: domain, RuleID: id}, nil
	})
	d.Handle(messaging.ActionUnblockDomain, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.DomainRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		return messaging.SuccessResponse{Success: b.UnblockDomain(in.Domain)}, nil
	})
	d.Handle(messaging.ActionGetBlockedDomains, func(context.Context, messaging.Request) (any, error) {
		return messaging.BlockedDomainsResponse{Domains: b.BlockedDomains()}, nil
	})

	d.Handle(messaging.ActionGetFilters, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.CosmeticRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		return messaging.CosmeticResponse{Cosmetic: b.CosmeticFilters(in.Domain)}, nil
	})
	d.Handle(messaging.ActionBlockElement, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.BlockElementRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		if err := b.BlockElement(in.Domain, in.Selector); err != nil {
			return nil, err
		}
		return ok, nil
	})
	d.Handle(messaging.ActionStartPicker, func(ctx context.Context, req messaging.Request) (any, error) {
		var in messaging.PickerRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		if err := b.StartPicker(ctx, in.TabID); err != nil {
			return nil, err
		}
		return ok, nil
	})
	d.Handle(messaging.ActionStopPicker, func(ctx context.Context, req messaging.Request) (any, error) {
		var in messaging.PickerRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		if err := b.StopPicker(ctx, in.TabID); err != nil {
			return nil, err
		}
		return ok, nil
	})

	d.Handle(messaging.ActionResetStats, func(context.Context, messaging.Request) (any, error) {
		b.ResetStats()
		return ok, nil
	})
	d.Handle(messaging.ActionExportData, func(context.Context, messaging.Request) (any, error) {
		return messaging.ExportResponse{Data: b.Export()}, nil
	})
	d.Handle(messaging.ActionImportData, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.ImportRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		if err := b.Import(in.Data); err != nil {
			return nil, err
		}
		return ok, nil
	})
	d.Handle(messaging.ActionToggleLogging, func(context.Context, messaging.Request) (any, error) {
		return messaging.LoggingResponse{LoggingEnabled: b.ToggleLogging()}, nil
	})
	d.Handle(messaging.ActionGetRequestLog, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.LogRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		return messaging.LogResponse{Log: b.RequestLog(in.Limit)}, nil
	})
	d.Handle(messaging.ActionClearLog, func(context.Context, messaging.Request) (any, error) {
		b.ClearLog()
		return ok, nil
	})
	d.Handle(messaging.ActionCheckURL, func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.URLRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		if in.URL == "" {
			return nil, ErrInvalidURL
		}
		return b.CheckURL(in.URL, in.ResourceType), nil
	})
}
