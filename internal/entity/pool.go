package entity

import (
	"fmt"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// Pool is an indexed, read-only view of the generated entities.
// Only active cards are eligible for new transactions.
type Pool struct {
	users     []domain.User
	merchants []domain.Merchant

	userIdx     map[string]int
	cardIdx     map[string]*domain.Card
	activeCards map[string][]*domain.Card
}

// NewPool indexes the given entities. It fails fast when generation could
// never make progress: no users, no merchants, or no active card anywhere.
func NewPool(users []domain.User, cards []domain.Card, merchants []domain.Merchant) (*Pool, error) {
	if len(users) == 0 {
		return nil, domain.ErrNoUsers
	}
	if len(merchants) == 0 {
		return nil, domain.ErrNoMerchants
	}

	p := &Pool{
		users:       users,
		merchants:   merchants,
		userIdx:     make(map[string]int, len(users)),
		cardIdx:     make(map[string]*domain.Card, len(cards)),
		activeCards: make(map[string][]*domain.Card),
	}
	for i := range users {
		p.userIdx[users[i].UserID] = i
	}

	active := 0
	for i := range cards {
		c := &cards[i]
		if _, ok := p.userIdx[c.UserID]; !ok {
			return nil, fmt.Errorf("card %s references unknown user %s", c.CardID, c.UserID)
		}
		p.cardIdx[c.CardID] = c
		if c.IsActive {
			p.activeCards[c.UserID] = append(p.activeCards[c.UserID], c)
			active++
		}
	}
	if active == 0 {
		return nil, domain.ErrNoActiveCards
	}

	return p, nil
}

// Subset returns a pool restricted to users[from:to]. Merchants are shared.
// It fails with ErrNoActiveCards when the slice holds no active card.
func (p *Pool) Subset(from, to int) (*Pool, error) {
	users := p.users[from:to]
	var cards []domain.Card
	for _, u := range users {
		for _, c := range p.activeCards[u.UserID] {
			cards = append(cards, *c)
		}
	}
	return NewPool(users, cards, p.merchants)
}

// Users returns the users in generation order.
func (p *Pool) Users() []domain.User { return p.users }

// Merchants returns the merchants in generation order.
func (p *Pool) Merchants() []domain.Merchant { return p.merchants }

// UserCount returns the number of users.
func (p *Pool) UserCount() int { return len(p.users) }

// MerchantCount returns the number of merchants.
func (p *Pool) MerchantCount() int { return len(p.merchants) }

// UserAt returns the i-th user.
func (p *Pool) UserAt(i int) *domain.User { return &p.users[i] }

// MerchantAt returns the i-th merchant.
func (p *Pool) MerchantAt(i int) *domain.Merchant { return &p.merchants[i] }

// ActiveCards returns the active cards owned by userID.
func (p *Pool) ActiveCards(userID string) []*domain.Card {
	return p.activeCards[userID]
}

// User resolves a user by id.
func (p *Pool) User(id string) (*domain.User, bool) {
	i, ok := p.userIdx[id]
	if !ok {
		return nil, false
	}
	return &p.users[i], true
}

// Card resolves a card by id.
func (p *Pool) Card(id string) (*domain.Card, bool) {
	c, ok := p.cardIdx[id]
	return c, ok
}
