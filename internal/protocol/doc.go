// Package protocol defines the JSON envelope exchanged over group websockets.
//
// Every frame on the wire is an object {"type": ..., "data": ...} where the
// shape of data depends on type. Server and client share these definitions:
//
//   - join          client -> server  {groupId, memberId}
//   - item_added    both directions    {groupId, item}
//   - item_updated  both directions    {groupId, itemId, completed}
//   - member_joined server -> client   member record
//   - error         server -> client   {code, message, details?}
package protocol
