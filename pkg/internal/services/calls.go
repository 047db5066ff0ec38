package services

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/rtc"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// JoinGrant is what a participant may do once inside the room.
type JoinGrant struct {
	Admin      bool
	CanPublish bool
}

// CallProvider manages the audio/video rooms sessions are held in.
type CallProvider interface {
	CreateRoom(ctx context.Context, session models.Session) error
	DeleteRoom(ctx context.Context, session models.Session) error
	EncodeJoinToken(user uint, session models.Session, grant JoinGrant) (string, error)
}

// Channels runs session calls on the rtc channel of the session, the same
// channel the cloud recorder joins.
type Channels struct {
	client *rtc.Client
}

func NewChannels(client *rtc.Client) *Channels {
	return &Channels{client: client}
}

// CreateRoom has nothing to provision, a channel exists once someone joins.
func (v *Channels) CreateRoom(ctx context.Context, session models.Session) error {
	log.Debug().Uint("session", session.ID).Str("channel", session.ChannelName()).Msg("Call channel opens on first join.")
	return nil
}

func (v *Channels) DeleteRoom(ctx context.Context, session models.Session) error {
	return v.client.CloseChannel(ctx, session.ChannelName())
}

// EncodeJoinToken pins the token to the user's id. Managers and speakers
// publish, everyone else only listens.
func (v *Channels) EncodeJoinToken(user uint, session models.Session, grant JoinGrant) (string, error) {
	role := lo.Ternary(grant.Admin || grant.CanPublish, rtc.RolePublisher, rtc.RoleSubscriber)
	return v.client.Build(session.ChannelName(), uint32(user), role, v.client.TokenDuration())
}

// MintRecorderToken issues the subscribe-only identity the cloud recorder
// joins the session channel with.
func (v *Channels) MintRecorderToken(channel string, uid uint32, ttl time.Duration) (string, error) {
	return v.client.Build(channel, uid, rtc.RoleSubscriber, ttl)
}
