//go:build integration

package notification_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"captable/internal/notification"
	id "captable/pkg/domain"
	"captable/pkg/testutil/containers"
)

type RedisNotifierSuite struct {
	suite.Suite
	redis    *containers.RedisContainer
	notifier *notification.RedisNotifier
}

func TestRedisNotifierSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisNotifierSuite))
}

func (s *RedisNotifierSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.notifier = notification.NewRedisNotifier(s.redis.Client, notification.WithInboxSize(2))
}

func (s *RedisNotifierSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisNotifierSuite) TestSubmitAppendsToCappedInbox() {
	ctx := context.Background()
	userID := id.NewUserID()
	sub := s.redis.Client.Subscribe(ctx, notification.EventsChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	s.Require().NoError(err)

	for _, name := range []string{"first", "second", "third"} {
		s.Require().NoError(s.notifier.Submit(ctx, notification.Request{
			UserID:      userID,
			Kind:        notification.KindCompanyActivated,
			CompanyID:   id.NewCompanyID(),
			CompanyName: name,
		}))
	}

	items, err := s.redis.Client.LRange(ctx, notification.InboxKey(userID.String()), 0, -1).Result()
	s.Require().NoError(err)
	s.Require().Len(items, 2)

	var newest notification.Request
	s.Require().NoError(json.Unmarshal([]byte(items[0]), &newest))
	s.Equal("third", newest.CompanyName)

	msg, err := sub.ReceiveMessage(ctx)
	s.Require().NoError(err)
	s.Contains(msg.Payload, "first")
}
