package types

const (
	EventTypePlayerJoined      = "PlayerJoined"
	EventTypePlayerMoved       = "PlayerMoved"
	EventTypeIdentityDisclosed = "IdentityDisclosed"

	AttributeKeyPlayer   = "player"
	AttributeKeyX        = "xHandle"
	AttributeKeyY        = "yHandle"
	AttributeKeyIdentity = "identityHandle"
	AttributeKeyIndex    = "index"
)
