package storage

// Persisted state keys.
const (
	KeyStats          = "stats"
	KeyWhitelist      = "whitelist"
	KeyCustomFilters  = "customFilters"
	KeyEnabled        = "enabled"
	KeyLoggingEnabled = "loggingEnabled"
	KeyDynamicRules   = "dynamicRules"
	KeyBlockedDomains = "blockedDomains"
	KeyCosmeticRules  = "cosmeticRules"
	KeyRequestLog     = "requestLog"
)

// AllKeys lists every key the blocker persists, in save order.
var AllKeys = []string{
	KeyStats,
	KeyWhitelist,
	KeyCustomFilters,
	KeyEnabled,
	KeyLoggingEnabled,
	KeyDynamicRules,
	KeyBlockedDomains,
	KeyCosmeticRules,
	KeyRequestLog,
}
