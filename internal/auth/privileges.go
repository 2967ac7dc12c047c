package auth

// Privileges is a fixed-width bit-flag set describing what an account is
// allowed to do. Flags are independent; composite masks are provided for the
// groupings the service checks most often.
type Privileges int32

const (
	// PrivNormal is cleared when an account is banned or restricted.
	PrivNormal Privileges = 1 << 0
	// PrivVerified is set once the account has completed in-game verification.
	PrivVerified Privileges = 1 << 1
	// PrivWhitelisted accounts bypass automated score checks.
	PrivWhitelisted Privileges = 1 << 2

	PrivSupporter Privileges = 1 << 4
	PrivPremium   Privileges = 1 << 5

	PrivAlumni Privileges = 1 << 7

	PrivTournament Privileges = 1 << 10
	PrivNominator  Privileges = 1 << 11
	PrivModerator  Privileges = 1 << 12
	PrivAdmin      Privileges = 1 << 13
	PrivDeveloper  Privileges = 1 << 14
)

// Composite masks.
const (
	PrivDonator = PrivSupporter | PrivPremium
	PrivStaff   = PrivModerator | PrivAdmin | PrivDeveloper
)

// Has reports whether all bits of mask are set.
func (p Privileges) Has(mask Privileges) bool { return p&mask == mask }

// HasAny reports whether any bit of mask is set.
func (p Privileges) HasAny(mask Privileges) bool { return p&mask != 0 }

// IsNormal reports whether the account is neither banned nor restricted.
func (p Privileges) IsNormal() bool { return p.Has(PrivNormal) }

// IsVerified reports whether the account passed verification.
func (p Privileges) IsVerified() bool { return p.Has(PrivVerified) }

// IsDonator reports whether the account holds any donor perk.
func (p Privileges) IsDonator() bool { return p.HasAny(PrivDonator) }

// IsStaff reports whether the account holds any staff role.
func (p Privileges) IsStaff() bool { return p.HasAny(PrivStaff) }

// DefaultPrivileges is what a freshly registered account starts with: in good
// standing, but awaiting verification.
const DefaultPrivileges = PrivNormal
