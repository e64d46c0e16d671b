package fixtures

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/platinummonkey/crmgate/pkg/rbac"
	"gopkg.in/yaml.v3"
)

//go:embed speccon.yaml
var specconYAML []byte

// Tenant is a tenant fixture.
type Tenant struct {
	ID                      int64  `yaml:"id"`
	Name                    string `yaml:"name"`
	Inactive                bool   `yaml:"inactive"`
	CurrencySymbol          string `yaml:"currencySymbol"`
	FinancialYearStartMonth int    `yaml:"financialYearStartMonth"`
	FinancialYearEndMonth   int    `yaml:"financialYearEndMonth"`
}

// User is a user fixture. Tenant and Manager reference other fixtures by
// tenant name and manager email.
type User struct {
	ID          int64     `yaml:"id"`
	Email       string    `yaml:"email"`
	DisplayName string    `yaml:"displayName"`
	Tenant      string    `yaml:"tenant"`
	Role        rbac.Role `yaml:"role"`
	Manager     string    `yaml:"manager"`
	Password    string    `yaml:"password"`
	Inactive    bool      `yaml:"inactive"`
	SystemAdmin bool      `yaml:"systemAdmin"`

	TenantID  *int64 `yaml:"-"`
	ManagerID *int64 `yaml:"-"`
}

// Client is a client fixture. Monetary values are minor units.
type Client struct {
	ID             int64  `yaml:"id"`
	Name           string `yaml:"name"`
	Tenant         string `yaml:"tenant"`
	Owner          string `yaml:"owner"`
	Status         string `yaml:"status"`
	AnnualValue    int64  `yaml:"annualValue"`
	ForecastValue  int64  `yaml:"forecastValue"`
	CollectedValue int64  `yaml:"collectedValue"`

	TenantID int64 `yaml:"-"`
	OwnerID  int64 `yaml:"-"`
}

// Dataset is a resolved fixture set.
type Dataset struct {
	Tenants []Tenant `yaml:"tenants"`
	Users   []User   `yaml:"users"`
	Clients []Client `yaml:"clients"`

	usersByID    map[int64]*User
	usersByEmail map[string]*User
	tenantsByID  map[int64]*Tenant
}

// Speccon returns a fresh copy of the embedded reference data set.
func Speccon() *Dataset {
	ds, err := Parse(specconYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded fixture is invalid: %v", err))
	}
	return ds
}

// Load reads and resolves a fixture file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and resolves a fixture document.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}
	if err := ds.resolve(); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (ds *Dataset) resolve() error {
	ds.tenantsByID = make(map[int64]*Tenant, len(ds.Tenants))
	tenantsByName := make(map[string]int64, len(ds.Tenants))
	for i := range ds.Tenants {
		t := &ds.Tenants[i]
		if t.ID <= 0 || t.Name == "" {
			return fmt.Errorf("tenant %d: id and name are required", i)
		}
		if _, dup := ds.tenantsByID[t.ID]; dup {
			return fmt.Errorf("tenant %s: duplicate id %d", t.Name, t.ID)
		}
		ds.tenantsByID[t.ID] = t
		tenantsByName[t.Name] = t.ID
	}

	ds.usersByID = make(map[int64]*User, len(ds.Users))
	ds.usersByEmail = make(map[string]*User, len(ds.Users))
	for i := range ds.Users {
		u := &ds.Users[i]
		u.Email = strings.ToLower(u.Email)
		if u.ID <= 0 || u.Email == "" {
			return fmt.Errorf("user %d: id and email are required", i)
		}
		if _, dup := ds.usersByID[u.ID]; dup {
			return fmt.Errorf("user %s: duplicate id %d", u.Email, u.ID)
		}
		if !u.Role.Valid() {
			return fmt.Errorf("user %s: role is required", u.Email)
		}
		if u.Tenant != "" {
			tid, ok := tenantsByName[u.Tenant]
			if !ok {
				return fmt.Errorf("user %s: unknown tenant %q", u.Email, u.Tenant)
			}
			u.TenantID = &tid
		} else if !u.SystemAdmin {
			return fmt.Errorf("user %s: only system admins may be tenantless", u.Email)
		}
		ds.usersByID[u.ID] = u
		ds.usersByEmail[u.Email] = u
	}

	for i := range ds.Users {
		u := &ds.Users[i]
		if u.Manager == "" {
			continue
		}
		mgr, ok := ds.usersByEmail[strings.ToLower(u.Manager)]
		if !ok {
			return fmt.Errorf("user %s: unknown manager %q", u.Email, u.Manager)
		}
		id := mgr.ID
		u.ManagerID = &id
	}

	for i := range ds.Clients {
		c := &ds.Clients[i]
		tid, ok := tenantsByName[c.Tenant]
		if !ok {
			return fmt.Errorf("client %s: unknown tenant %q", c.Name, c.Tenant)
		}
		owner, ok := ds.usersByEmail[strings.ToLower(c.Owner)]
		if !ok {
			return fmt.Errorf("client %s: unknown owner %q", c.Name, c.Owner)
		}
		if owner.TenantID == nil || *owner.TenantID != tid {
			return fmt.Errorf("client %s: owner %s is not in tenant %s", c.Name, c.Owner, c.Tenant)
		}
		if c.Status == "" {
			c.Status = "Active"
		}
		c.TenantID = tid
		c.OwnerID = owner.ID
	}
	return nil
}

// UserByEmail returns a user fixture, matching case-insensitively.
func (ds *Dataset) UserByEmail(email string) (*User, bool) {
	u, ok := ds.usersByEmail[strings.ToLower(email)]
	return u, ok
}

// UserByID returns a user fixture.
func (ds *Dataset) UserByID(id int64) (*User, bool) {
	u, ok := ds.usersByID[id]
	return u, ok
}

// TenantByName returns a tenant fixture.
func (ds *Dataset) TenantByName(name string) (*Tenant, bool) {
	for i := range ds.Tenants {
		if ds.Tenants[i].Name == name {
			return &ds.Tenants[i], true
		}
	}
	return nil, false
}

// ClientNames returns the sorted names of the clients for which keep
// returns true.
func (ds *Dataset) ClientNames(keep func(Client) bool) []string {
	var names []string
	for _, c := range ds.Clients {
		if keep(c) {
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	return names
}
