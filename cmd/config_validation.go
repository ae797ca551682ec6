package cmd

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/robfig/cron/v3"

	"github.com/Laisky/campus-portal/internal/storage"
	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/library/db/sqldb"
)

// configGetter retrieves raw configuration values by dotted key path.
type configGetter func(key string) any

// minSecretLength is the shortest accepted JWT secret.
const minSecretLength = 16

// validateStartupConfig validates startup configuration from the shared config source.
// It returns an error when any configured value is malformed or violates constraints.
func validateStartupConfig() error {
	return validateStartupConfigWithGetter(func(key string) any {
		return gconfig.S.Get(key)
	})
}

// validateStartupConfigWithGetter validates startup configuration via a key-value getter.
// It accepts a value getter and returns nil when all configured values are valid.
func validateStartupConfigWithGetter(get configGetter) error {
	if get == nil {
		return errors.New("config getter is nil")
	}

	validationErrs := make([]string, 0)

	validateDBConfig(get, &validationErrs)
	validateRedisConfig(get, &validationErrs)
	validateSecretConfig(get, &validationErrs)
	validateStorageConfig(get, &validationErrs)
	validateStorageDisksConfig(get, &validationErrs)
	validateWebConfig(get, &validationErrs)

	if len(validationErrs) == 0 {
		return nil
	}

	return errors.Errorf("invalid configuration:\n - %s", strings.Join(validationErrs, "\n - "))
}

// validateDBConfig validates the relational database dial settings.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateDBConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.db.port", 1, errs)

	raw := get("settings.db.type")
	if raw == nil {
		return
	}
	dbType, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "settings.db.type must be a string")
		return
	}

	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case sqldb.TypePostgres:
	case sqldb.TypeSQLite:
		if get("settings.db.sqlite_path") == nil {
			appendValidationError(errs, "settings.db.sqlite_path is required when settings.db.type is sqlite")
		} else {
			validateOptionalStringNonEmpty(get, "settings.db.sqlite_path", errs)
		}
	default:
		appendValidationError(errs, "settings.db.type must be one of [%s, %s]", sqldb.TypePostgres, sqldb.TypeSQLite)
	}
}

// validateRedisConfig validates redis-related startup configuration values.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateRedisConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.redis.db", 0, errs)
	if raw := get("settings.redis.addr"); raw != nil {
		addr, parseErr := parseStrictString(raw)
		if parseErr != nil || (strings.TrimSpace(addr) != "" && !isValidHost(addr)) {
			appendValidationError(errs, "settings.redis.addr must be a host:port")
		}
	}
}

// validateSecretConfig validates the JWT signing secret.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateSecretConfig(get configGetter, errs *[]string) {
	raw := get("settings.secret")
	if raw == nil {
		return
	}

	secret, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "settings.secret must be a string")
		return
	}
	if len(strings.TrimSpace(secret)) < minSecretLength {
		appendValidationError(errs, "settings.secret must be at least %d characters", minSecretLength)
	}
}

// validateStorageConfig validates naming and cleanup settings of the storage core.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateStorageConfig(get configGetter, errs *[]string) {
	validateOptionalPathPrefix(get, "settings.storage.public_prefix", errs)
	validateOptionalIntMin(get, "settings.storage.name_attempts", 1, errs)
	validateOptionalIntMin(get, "settings.storage.cleanup.days", 0, errs)
	validateOptionalIntMin(get, "settings.storage.cleanup.lock_ttl_seconds", 1, errs)

	raw := get("settings.storage.cleanup.schedule")
	if raw == nil {
		return
	}
	spec, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "settings.storage.cleanup.schedule must be a string")
		return
	}
	if spec = strings.TrimSpace(spec); spec == "" {
		return
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		appendValidationError(errs, "settings.storage.cleanup.schedule must be a cron spec: %v", err)
	}
}

// validateStorageDisksConfig validates the per-disk backend sections.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateStorageDisksConfig(get configGetter, errs *[]string) {
	rawDisks := get("settings.storage.disks")
	if rawDisks == nil {
		return
	}

	disks := toStringMap(rawDisks)
	if disks == nil {
		appendValidationError(errs, "settings.storage.disks must be an object")
		return
	}

	for diskName, diskVal := range disks {
		if _, err := disk.ParseName(diskName); err != nil {
			appendValidationError(errs, "settings.storage.disks.%s is not a known disk", diskName)
			continue
		}
		diskCfg := toStringMap(diskVal)
		if diskCfg == nil {
			appendValidationError(errs, "settings.storage.disks.%s must be an object", diskName)
			continue
		}

		prefix := "settings.storage.disks." + diskName + "."
		driver := storage.DriverLocal
		if driverVal, ok := diskCfg["driver"]; ok {
			parsed, parseErr := parseStrictString(driverVal)
			if parseErr != nil {
				appendValidationError(errs, "%sdriver must be a string", prefix)
				continue
			}
			driver = strings.ToLower(strings.TrimSpace(parsed))
		}

		if secureVal, ok := diskCfg["secure"]; ok {
			if _, parseOK := parseStrictBool(secureVal); !parseOK {
				appendValidationError(errs, "%ssecure must be a boolean", prefix)
			}
		}
		if urlVal, ok := diskCfg["url"]; ok {
			if _, parseErr := parseStrictString(urlVal); parseErr != nil {
				appendValidationError(errs, "%surl must be a string", prefix)
			}
		}

		switch driver {
		case storage.DriverLocal, "":
		case storage.DriverMinio:
			for _, field := range []string{"endpoint", "bucket", "access_key", "secret_key"} {
				validateRequiredStringInMap(errs, diskCfg, prefix+field)
			}
			if endpoint, parseErr := parseStrictString(diskCfg["endpoint"]); parseErr == nil &&
				strings.TrimSpace(endpoint) != "" && !isValidHost(endpoint) {
				appendValidationError(errs, "%sendpoint must be a host without scheme", prefix)
			}
		default:
			appendValidationError(errs, "%sdriver must be one of [%s, %s]", prefix, storage.DriverLocal, storage.DriverMinio)
		}
	}
}

// validateWebConfig validates the HTTP surface settings.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateWebConfig(get configGetter, errs *[]string) {
	for _, key := range []string{"total_per_sec", "total_burst", "user_per_sec", "user_burst"} {
		validateOptionalIntMin(get, "settings.web.upload_throttle."+key, 0, errs)
	}

	raw := get("settings.web.cors_domains")
	if raw == nil {
		return
	}

	items, ok := raw.([]any)
	if !ok {
		if strs, isStrs := raw.([]string); isStrs {
			for _, s := range strs {
				items = append(items, s)
			}
		} else {
			appendValidationError(errs, "settings.web.cors_domains must be a list")
			return
		}
	}
	for i, item := range items {
		host, parseErr := parseStrictString(item)
		if parseErr != nil || !isValidHost(host) {
			appendValidationError(errs, "settings.web.cors_domains[%d] must be a domain", i)
		}
	}
}

// toStringMap converts decoded YAML objects into a string-keyed map.
// It returns nil when value is not an object.
func toStringMap(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = val
		}
		return out
	default:
		return nil
	}
}

// validateOptionalIntMin validates an optionally configured integer key with a minimum constraint.
// It accepts a getter, the key, a minimum value, and an error collector pointer and appends validation errors.
func validateOptionalIntMin(get configGetter, key string, min int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalPathPrefix validates an optionally configured URL base path.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalPathPrefix(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string path", key)
		return
	}

	if !isValidBasePath(value) {
		appendValidationError(errs, "%s must be empty or start with '/'", key)
	}
}

// validateOptionalStringNonEmpty validates an optionally configured non-empty string key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalStringNonEmpty(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	if strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must not be empty", key)
	}
}

// validateRequiredStringInMap validates that a required map field is a non-empty string.
// It accepts an error collector pointer, a source map, and the field path label, and appends validation errors.
func validateRequiredStringInMap(errs *[]string, source map[string]any, fieldPath string) {
	parts := strings.Split(fieldPath, ".")
	key := parts[len(parts)-1]
	value, ok := source[key]
	if !ok {
		appendValidationError(errs, "%s is required", fieldPath)
		return
	}

	text, parseErr := parseStrictString(value)
	if parseErr != nil || strings.TrimSpace(text) == "" {
		appendValidationError(errs, "%s must be a non-empty string", fieldPath)
	}
}

// parseStrictBool parses a value as boolean using strict conversion rules.
// It accepts a raw value and returns the parsed boolean and whether parsing succeeded.
func parseStrictBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case float64:
		if math.Trunc(v) != v {
			return false, false
		}
		return int64(v) != 0, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return false, false
		}
		switch strings.ToLower(trimmed) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

// parseStrictInt parses a value as a strict integer.
// It accepts a raw value and returns the parsed int and an error when parsing fails.
func parseStrictInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.Trunc(v) != v {
			return 0, errors.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty integer string")
		}
		parsed, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, errors.Wrap(err, "atoi")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported int type %T", value)
	}
}

// parseStrictString parses a value as a strict string.
// It accepts a raw value and returns the parsed string and an error when parsing fails.
func parseStrictString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.Errorf("unsupported string type %T", value)
	}
}

// isValidBasePath validates a base path used for URL prefixes.
// It accepts a path string and returns whether it is empty or starts with '/'.
func isValidBasePath(path string) bool {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return true
	}
	return strings.HasPrefix(trimmed, "/")
}

// isValidHost validates a host string without scheme or path components.
// It accepts a host string and returns true when the host is syntactically acceptable.
func isValidHost(host string) bool {
	trimmed := strings.TrimSpace(host)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "://") || strings.Contains(trimmed, "/") {
		return false
	}
	return true
}

// appendValidationError appends a formatted validation error to the collector.
// It accepts an error slice pointer, a format string, and format arguments, and has no return value.
func appendValidationError(errs *[]string, format string, args ...any) {
	if errs == nil {
		return
	}
	*errs = append(*errs, fmt.Sprintf(format, args...))
}
