package enum

// ── Session lifecycle ──

const (
	SessionStatusIdle            = "idle"
	SessionStatusLoading         = "loading"
	SessionStatusAuthenticated   = "authenticated"
	SessionStatusUnauthenticated = "unauthenticated"
)

// ── Staff roles (role strings carried in JWT claims) ──

const (
	RoleSuperadmin   = "superadmin"
	RoleAdmin        = "admin"
	RoleManager      = "manager"
	RoleReceptionist = "receptionist"
	RoleHousekeeping = "housekeeping"
	RoleRestaurant   = "restaurant"
	RoleAccountant   = "accountant"
	RoleGuest        = "guest"
)

// ── Booking wizard ──

const (
	BookingStepSearch       = "search"
	BookingStepRooms        = "rooms"
	BookingStepDetails      = "details"
	BookingStepPayment      = "payment"
	BookingStepConfirmation = "confirmation"
)

const (
	BookingSourceWebsite = "website"
	BookingSourceWalkIn  = "walk-in"
	BookingSourcePhone   = "phone"
	BookingSourceOTA     = "ota"
)

// ── Restaurant orders ──

const (
	OrderTypeRoomService = "room-service"
	OrderTypeDineIn      = "dine-in"
	OrderTypeTakeaway    = "takeaway"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// ── Persistence ──

const (
	StorageBackendMemory   = "memory"
	StorageBackendRedis    = "redis"
	StorageBackendPostgres = "postgres"
)

const (
	AuthModeLocal  = "local"
	AuthModeRemote = "remote"
)
