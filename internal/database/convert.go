package database

import "github.com/npezzotti/go-ordersupport/internal/types"

func (u User) Public() types.User {
	return types.User{
		Id:        u.Id,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

func (o Order) Public() types.Order {
	return types.Order{
		Id:                o.Id,
		ExternalSessionId: o.ExternalSessionId,
		UserId:            o.UserId,
		UserEmail:         o.UserEmail,
		AmountTotal:       o.AmountTotal,
		Currency:          o.Currency,
		Status:            o.Status,
		CreatedAt:         o.CreatedAt,
	}
}

func (m Message) Public() types.Message {
	return types.Message{
		Id:         m.Id,
		OrderId:    m.OrderId,
		SenderId:   m.SenderId,
		SenderRole: m.SenderRole,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
}

func (p Product) Public() types.Product {
	return types.Product{
		Id:          p.Id,
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
	}
}

func (r Review) Public() types.Review {
	return types.Review{
		Id:        r.Id,
		ProductId: r.ProductId,
		AuthorId:  r.AuthorId,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}

// PublicMessages converts messages preserving order; the result is never nil.
func PublicMessages(msgs []Message) []types.Message {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Public())
	}
	return out
}
