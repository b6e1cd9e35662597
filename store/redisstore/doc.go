// Package redisstore implements the refresh token, device and role permission
// stores on Redis.
//
// # Key layout
//
//	{prefix}:rt:{hash}            refresh token hash (HSET), expires with the token
//	{prefix}:rtd:{user}:{device}  set of token hashes issued to one device
//	{prefix}:rtu:{user}           set of device ids holding tokens
//	{prefix}:dev:{user}:{device}  device row (HSET)
//	{prefix}:devs:{user}          set of device ids
//	{prefix}:rp:{role}            list of capability rows
//
// Insert, rotation and revocation run as Lua scripts so the used flag is
// tested and flipped in one step. Identities, memberships and tenants are
// relational data and live in pgstore.
//
// # What this package must NOT do
//
//   - Store refresh token values. Only their SHA-256 hashes are keys.
//   - Return go-redis errors unwrapped. Backend failures wrap store.ErrUnavailable.
package redisstore
