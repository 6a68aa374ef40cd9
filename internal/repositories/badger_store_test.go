package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/suite"

	"trade-market/internal/apperrors"
	"trade-market/internal/models"
)

type badgerStoreSuite struct {
	suite.Suite
	db    *badger.DB
	store *BadgerStore
	ctx   context.Context
}

func TestBadgerStore(t *testing.T) {
	suite.Run(t, new(badgerStoreSuite))
}

func (s *badgerStoreSuite) SetupTest() {
	db, err := badger.Open(badger.DefaultOptions(s.T().TempDir()).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	store, err := NewBadgerStore(db)
	s.Require().NoError(err)
	s.db, s.store, s.ctx = db, store, context.Background()

	for _, id := range []int64{1, 2, 3, 5, 9} {
		_, err := store.UpsertUser(s.ctx, models.User{ID: id, Name: fmt.Sprintf("user-%d", id), Email: fmt.Sprintf("u%d@example.com", id)})
		s.Require().NoError(err)
	}
}

func (s *badgerStoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
	s.Require().NoError(s.db.Close())
}

func (s *badgerStoreSuite) TestUpsertUserKeepsCreatedAt() {
	before, err := s.store.GetUsers(s.ctx, []int64{1})
	s.Require().NoError(err)
	s.Require().Len(before, 1)

	updated, err := s.store.UpsertUser(s.ctx, models.User{ID: 1, Name: "renamed", Email: "new@example.com"})
	s.Require().NoError(err)
	s.Equal("renamed", updated.Name)
	s.True(before[0].CreatedAt.Equal(updated.CreatedAt))

	users, err := s.store.GetUsers(s.ctx, []int64{1, 404})
	s.Require().NoError(err)
	s.Require().Len(users, 1)
	s.Equal("new@example.com", users[0].Email)
}

func (s *badgerStoreSuite) TestUpsertUserUnchangedSkipsWrite() {
	before, err := s.store.GetUsers(s.ctx, []int64{1})
	s.Require().NoError(err)
	s.Require().Len(before, 1)

	same, err := s.store.UpsertUser(s.ctx, models.User{ID: 1, Name: "user-1", Email: "u1@example.com"})
	s.Require().NoError(err)
	s.True(before[0].UpdatedAt.Equal(same.UpdatedAt))
}

func (s *badgerStoreSuite) TestRenamesRetryAlongsideMessages() {
	conv, err := s.store.CreateConversation(s.ctx, 1, 2)
	s.Require().NoError(err)

	const renames, messages = 8, 20
	errs := make([]error, renames+messages)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < renames+messages; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if i < renames {
				_, errs[i] = s.store.UpsertUser(s.ctx, models.User{ID: 1, Name: fmt.Sprintf("name-%d", i), Email: "u1@example.com"})
				return
			}
			_, errs[i] = s.store.CreateMessage(s.ctx, conv.ID, 1, fmt.Sprintf("m%d", i))
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		s.Require().NoError(err)
	}
	all, err := s.store.ListMessages(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Len(all, messages)
}

func (s *badgerStoreSuite) TestConversationPairIsUnordered() {
	created, err := s.store.CreateConversation(s.ctx, 5, 9)
	s.Require().NoError(err)
	s.Equal(int64(5), created.SenderID)
	s.Equal(int64(9), created.RecipientID)

	found, err := s.store.FindConversationByPair(s.ctx, 9, 5)
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)
	s.Equal(int64(5), found.SenderID)
	s.True(created.CreatedAt.Equal(found.CreatedAt))

	_, err = s.store.CreateConversation(s.ctx, 9, 5)
	s.ErrorIs(err, ErrPairConflict)
}

func (s *badgerStoreSuite) TestFindConversationByPairMissing() {
	_, err := s.store.FindConversationByPair(s.ctx, 1, 2)
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *badgerStoreSuite) TestCreateConversationUnknownUser() {
	_, err := s.store.CreateConversation(s.ctx, 1, 77)
	s.ErrorIs(err, apperrors.ErrNotFound)

	_, err = s.store.FindConversationByPair(s.ctx, 1, 77)
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *badgerStoreSuite) TestListConversationsForUserNewestFirst() {
	first, err := s.store.CreateConversation(s.ctx, 1, 2)
	s.Require().NoError(err)
	second, err := s.store.CreateConversation(s.ctx, 3, 1)
	s.Require().NoError(err)
	_, err = s.store.CreateConversation(s.ctx, 2, 3)
	s.Require().NoError(err)

	convs, err := s.store.ListConversationsForUser(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(convs, 2)
	s.Equal(second.ID, convs[0].ID)
	s.Equal(first.ID, convs[1].ID)

	none, err := s.store.ListConversationsForUser(s.ctx, 9)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *badgerStoreSuite) TestMessagesOrderedAndLatestWindow() {
	conv, err := s.store.CreateConversation(s.ctx, 1, 2)
	s.Require().NoError(err)
	other, err := s.store.CreateConversation(s.ctx, 1, 3)
	s.Require().NoError(err)

	for i := 1; i <= 11; i++ {
		_, err := s.store.CreateMessage(s.ctx, conv.ID, 1, fmt.Sprintf("m%d", i))
		s.Require().NoError(err)
	}
	_, err = s.store.CreateMessage(s.ctx, other.ID, 3, "elsewhere")
	s.Require().NoError(err)

	all, err := s.store.ListMessages(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Require().Len(all, 11)
	s.Equal("m1", all[0].Body)
	s.Equal("m11", all[10].Body)

	latest, err := s.store.ListLatestMessages(s.ctx, conv.ID, 3)
	s.Require().NoError(err)
	s.Require().Len(latest, 3)
	s.Equal([]string{"m9", "m10", "m11"}, []string{latest[0].Body, latest[1].Body, latest[2].Body})
}

func (s *badgerStoreSuite) TestCreateMessageUnknownConversation() {
	_, err := s.store.CreateMessage(s.ctx, 404, 1, "hello")
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *badgerStoreSuite) TestTradeLifecycle() {
	trade, err := s.store.CreateTrade(s.ctx, models.Trade{
		OwnerID: 1,
		Title:   "bike",
		Images: []models.TradeImage{
			{StorageKey: "a", ContentType: "image/png", Size: 10},
			{StorageKey: "b", ContentType: "image/jpeg", Size: 20},
		},
	})
	s.Require().NoError(err)
	s.Require().Len(trade.Images, 2)
	s.Equal(0, trade.Images[0].Position)
	s.Equal(1, trade.Images[1].Position)

	updated, removed, err := s.store.UpdateTrade(s.ctx, trade.ID, TradeChanges{
		Title:          "red bike",
		Description:    "barely used",
		AddImages:      []models.TradeImage{{StorageKey: "c", ContentType: "image/gif"}},
		RemoveImageIDs: []int64{trade.Images[0].ID},
	})
	s.Require().NoError(err)
	s.Equal("red bike", updated.Title)
	s.Require().Len(removed, 1)
	s.Equal("a", removed[0].StorageKey)
	s.Require().Len(updated.Images, 2)
	s.Equal("b", updated.Images[0].StorageKey)
	s.Equal("c", updated.Images[1].StorageKey)
	s.Equal(2, updated.Images[1].Position)

	images, err := s.store.DeleteTrade(s.ctx, trade.ID)
	s.Require().NoError(err)
	s.Len(images, 2)

	_, err = s.store.GetTrade(s.ctx, trade.ID)
	s.ErrorIs(err, apperrors.ErrNotFound)
	_, err = s.store.DeleteTrade(s.ctx, trade.ID)
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *badgerStoreSuite) TestUpdateTradeChecksImageLimit() {
	trade, err := s.store.CreateTrade(s.ctx, models.Trade{
		OwnerID: 1,
		Title:   "lamp",
		Images:  []models.TradeImage{{StorageKey: "a"}, {StorageKey: "b"}},
	})
	s.Require().NoError(err)

	_, _, err = s.store.UpdateTrade(s.ctx, trade.ID, TradeChanges{
		Title:     "lamp",
		AddImages: []models.TradeImage{{StorageKey: "c"}, {StorageKey: "d"}},
		MaxImages: 3,
	})
	var verr *apperrors.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Contains(verr.Fields, "images")

	stored, err := s.store.GetTrade(s.ctx, trade.ID)
	s.Require().NoError(err)
	s.Len(stored.Images, 2)

	updated, _, err := s.store.UpdateTrade(s.ctx, trade.ID, TradeChanges{
		Title:          "lamp",
		AddImages:      []models.TradeImage{{StorageKey: "c"}, {StorageKey: "d"}},
		RemoveImageIDs: []int64{trade.Images[0].ID},
		MaxImages:      3,
	})
	s.Require().NoError(err)
	s.Len(updated.Images, 3)
}

func (s *badgerStoreSuite) TestListTradesByOwner() {
	a, err := s.store.CreateTrade(s.ctx, models.Trade{OwnerID: 1, Title: "a"})
	s.Require().NoError(err)
	b, err := s.store.CreateTrade(s.ctx, models.Trade{OwnerID: 2, Title: "b"})
	s.Require().NoError(err)
	c, err := s.store.CreateTrade(s.ctx, models.Trade{OwnerID: 1, Title: "c"})
	s.Require().NoError(err)

	all, err := s.store.ListTrades(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal([]int64{c.ID, b.ID, a.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})

	mine, err := s.store.ListTrades(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal(c.ID, mine[0].ID)

	got, err := s.store.GetTrades(s.ctx, []int64{b.ID, 404})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("b", got[0].Title)
}

func (s *badgerStoreSuite) TestCreateTradeUnknownOwner() {
	_, err := s.store.CreateTrade(s.ctx, models.Trade{OwnerID: 404, Title: "ghost"})
	s.ErrorIs(err, apperrors.ErrNotFound)
}
