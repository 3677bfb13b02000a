package auth

// SimpleConfig is a plain value implementation of Config. Zero values fall
// back to sensible defaults through the getters.
type SimpleConfig struct {
	LoginURL        string
	RegisterURL     string
	RecoverURL      string
	SiteURL         string
	RoleHomeURLs    map[UserRole]string
	RoleOrder       []UserRole
	SigningKey      string
	MasqueradeParam string
}

var _ Config = (*SimpleConfig)(nil)

// DefaultConfig returns a config with the stock URLs and role order.
func DefaultConfig(signingKey string) *SimpleConfig {
	return &SimpleConfig{
		LoginURL:    "/login",
		RegisterURL: "/register",
		RecoverURL:  "/recover",
		SiteURL:     "/",
		RoleHomeURLs: map[UserRole]string{
			RoleAdmin: "/admin/index",
			RoleUser:  "/user/index",
		},
		RoleOrder:       DefaultRoleOrder,
		SigningKey:      signingKey,
		MasqueradeParam: "msq",
	}
}

func (c *SimpleConfig) GetLoginURL() string {
	if c.LoginURL == "" {
		return "/login"
	}
	return c.LoginURL
}

func (c *SimpleConfig) GetRegisterURL() string {
	if c.RegisterURL == "" {
		return "/register"
	}
	return c.RegisterURL
}

func (c *SimpleConfig) GetRecoverURL() string {
	if c.RecoverURL == "" {
		return "/recover"
	}
	return c.RecoverURL
}

func (c *SimpleConfig) GetSiteURL() string {
	if c.SiteURL == "" {
		return "/"
	}
	return c.SiteURL
}

// GetUserHomeURL maps a role to its landing page, falling back to the site
// root for roles without one.
func (c *SimpleConfig) GetUserHomeURL(role UserRole) string {
	if url, ok := c.RoleHomeURLs[role]; ok {
		return url
	}
	return c.GetSiteURL()
}

func (c *SimpleConfig) GetRoleOrder() []UserRole {
	if len(c.RoleOrder) == 0 {
		return DefaultRoleOrder
	}
	return c.RoleOrder
}

func (c *SimpleConfig) GetSigningKey() string {
	return c.SigningKey
}

func (c *SimpleConfig) GetMasqueradeParam() string {
	if c.MasqueradeParam == "" {
		return "msq"
	}
	return c.MasqueradeParam
}
