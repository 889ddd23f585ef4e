package config // package config loads application configuration from environment variables

import (
    "crypto/tls" // tls provides the protocol version constants for the LDAP client
    "log"        // log is used to report configuration errors and halt execution
    "os"         // os provides access to environment variables
    "strconv"    // strconv converts strings to other types
    "strings"    // strings splits list-valued variables
    "time"       // time parses duration-valued variables
)

// Config holds all runtime configuration values.  It is built exactly once
// at process start and passed by value into every constructor; nothing in
// the application reads the environment after startup.  Each field
// corresponds to an environment variable.
type Config struct {
    Env       string // application environment (e.g. "dev", "prod")
    Port      string // HTTP port to listen on
    DBUser    string // database username
    DBPass    string // database password (optional)
    DBHost    string // database host address
    DBPort    string // database port number
    DBName    string // database name
    JWTSecret string // secret used to sign session tokens
    TokenTTL  time.Duration // session token lifetime (default 12h)

    // AutoProvision controls whether a user with valid directory credentials
    // but no local record is created on first login.  The first user ever
    // provisioned becomes admin; every later one becomes employee.
    AutoProvision bool

    // AuthDisabled is the dev/test auto-login bypass.  When set, requests are
    // served as DevUser with DevRoles and no token is required.  Load refuses
    // the flag outright when Env is "prod" so the bypass can never be reached
    // through a production configuration path.
    AuthDisabled bool
    DevUser      string   // identity injected when AuthDisabled is set
    DevRoles     []string // role set injected when AuthDisabled is set

    LDAP LDAPConfig // directory client settings
}

// LDAPConfig describes how to reach and query the directory service.
type LDAPConfig struct {
    // URL of the directory, e.g. "ldap://host:389" or "ldaps://host:636".
    URL string
    // Mode selects the binding strategy: "service" binds with the service
    // account, searches for the user's DN and re-binds as that DN; "direct"
    // renders UserDNTemplate and binds straight away.
    Mode string
    // BindDN / BindPassword identify the service account (service mode only).
    BindDN       string
    BindPassword string
    // SearchBase and SearchFilter drive the user lookup.  The filter must
    // contain a "{username}" placeholder, e.g. "(uid={username})".
    SearchBase   string
    SearchFilter string
    // UserDNTemplate renders the user's DN in direct mode, e.g.
    // "uid={username},ou=people,dc=example,dc=org".
    UserDNTemplate string
    // StartTLS upgrades a plain ldap:// connection before binding.
    StartTLS bool
    // InsecureSkipVerify disables certificate validation.  This is a
    // compatibility escape hatch for broken directory endpoints, not a
    // recommended setting; it defaults to false (validate).
    InsecureSkipVerify bool
    // MinTLSVersion pins the lowest acceptable protocol version.
    MinTLSVersion uint16
    // Timeout bounds dialing and every directory operation.  The directory
    // is blocking network I/O; an unreachable server must fail the login,
    // never hang the request.
    Timeout time.Duration
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    cfg := Config{
        Env:       must("APP_ENV"),      // environment (dev/test/prod)
        Port:      must("APP_PORT"),     // port to bind the HTTP server
        DBUser:    must("DB_USER"),      // database user
        DBPass:    os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:    must("DB_HOST"),      // database host
        DBPort:    must("DB_PORT"),      // database port
        DBName:    must("DB_NAME"),      // database name
        JWTSecret: must("JWT_SECRET"),   // secret used for signing session tokens
        TokenTTL:  envDurDefault("TOKEN_TTL", 12*time.Hour),

        AutoProvision: envBoolDefault("AUTO_PROVISION", true),
        AuthDisabled:  envBoolDefault("AUTH_DISABLED", false),
        DevUser:       envDefault("DEV_USER", "dev-user"),
        DevRoles:      splitList(envDefault("DEV_ROLES", "admin")),

        LDAP: LDAPConfig{
            URL:                envDefault("LDAP_URL", "ldap://localhost:389"),
            Mode:               envDefault("LDAP_MODE", "direct"),
            BindDN:             os.Getenv("LDAP_BIND_DN"),
            BindPassword:       os.Getenv("LDAP_BIND_PASSWORD"),
            SearchBase:         envDefault("LDAP_SEARCH_BASE", "ou=people,dc=example,dc=org"),
            SearchFilter:       envDefault("LDAP_SEARCH_FILTER", "(uid={username})"),
            UserDNTemplate:     envDefault("LDAP_USER_DN_TEMPLATE", "uid={username},ou=people,dc=example,dc=org"),
            StartTLS:           envBoolDefault("LDAP_STARTTLS", false),
            InsecureSkipVerify: envBoolDefault("LDAP_INSECURE_SKIP_VERIFY", false),
            MinTLSVersion:      tlsVersion(envDefault("LDAP_MIN_TLS_VERSION", "1.2")),
            Timeout:            envDurDefault("LDAP_TIMEOUT", 10*time.Second),
        },
    }

    // The auto-login bypass disables authentication entirely; refuse to boot
    // a production environment with it switched on.
    if cfg.AuthDisabled && cfg.Env == "prod" {
        log.Fatal("AUTH_DISABLED=true is not allowed when APP_ENV=prod")
    }
    if cfg.LDAP.Mode != "service" && cfg.LDAP.Mode != "direct" {
        log.Fatalf("invalid LDAP_MODE: %q (want service or direct)", cfg.LDAP.Mode)
    }
    if cfg.LDAP.Mode == "service" && (cfg.LDAP.BindDN == "" || cfg.LDAP.BindPassword == "") {
        log.Fatal("LDAP_MODE=service requires LDAP_BIND_DN and LDAP_BIND_PASSWORD")
    }
    return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// envDefault returns the variable's value, or def when it is unset or empty.
func envDefault(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

// envBoolDefault parses a boolean-valued variable; unrecognized values fall
// back to the default.
func envBoolDefault(key string, def bool) bool {
    switch os.Getenv(key) {
    case "1", "true", "TRUE", "True", "yes", "on":
        return true
    case "0", "false", "FALSE", "False", "no", "off":
        return false
    }
    return def
}

// envDurDefault parses a duration-valued variable ("12h", "30s").  A bare
// integer is interpreted as hours for compatibility with older deployments.
func envDurDefault(key string, def time.Duration) time.Duration {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    if d, err := time.ParseDuration(v); err == nil && d > 0 {
        return d
    }
    if n, err := strconv.Atoi(v); err == nil && n > 0 {
        return time.Duration(n) * time.Hour
    }
    log.Fatalf("invalid duration for %s: %q", key, v)
    return def
}

// splitList parses a comma-separated list, trimming blanks.
func splitList(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}

// tlsVersion maps a human-friendly version string to the crypto/tls constant.
func tlsVersion(s string) uint16 {
    switch s {
    case "1.0":
        return tls.VersionTLS10
    case "1.1":
        return tls.VersionTLS11
    case "1.3":
        return tls.VersionTLS13
    default:
        return tls.VersionTLS12
    }
}
