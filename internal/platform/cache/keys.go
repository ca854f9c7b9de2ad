package cache

// Key names are shared with other deployments of the same cache and must not change.
const (
	AdminOrdersKey  = "admin:orders:all"
	AdminZonesKey   = "admin:zones:all"
	AdminCouponsKey = "admin:coupons:all"
	AdminStatsKey   = "analytics:admin:stats"
)

// UserOrdersKey names the cached order list of one user.
func UserOrdersKey(userID string) string { return "orders:user:" + userID }

// UserAddressesKey names the cached address book of one user.
func UserAddressesKey(userID string) string { return "user:" + userID + ":addresses" }

// UserFavoritesKey names the cached, product-enriched favorites of one user.
func UserFavoritesKey(userID string) string { return "user:" + userID + ":favorites" }

// UserRoleKey names the cached role of one user.
func UserRoleKey(userID string) string { return "user:role:" + userID }
