package database

import (
	"github.com/stretchr/testify/mock"
)

type MockOrderSupportRepository struct {
	mock.Mock
}

func (m *MockOrderSupportRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockOrderSupportRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockOrderSupportRepository) CreateUser(params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockOrderSupportRepository) GetUserById(id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockOrderSupportRepository) GetUserByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockOrderSupportRepository) SetUserAdmin(id int, isAdmin bool) (User, error) {
	args := m.Called(id, isAdmin)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockOrderSupportRepository) GetOrderById(id int) (Order, error) {
	args := m.Called(id)
	return args.Get(0).(Order), args.Error(1)
}
func (m *MockOrderSupportRepository) ListOrders() ([]Order, error) {
	args := m.Called()
	return args.Get(0).([]Order), args.Error(1)
}
func (m *MockOrderSupportRepository) ListOrdersByUser(userId int) ([]Order, error) {
	args := m.Called(userId)
	return args.Get(0).([]Order), args.Error(1)
}
func (m *MockOrderSupportRepository) CreateOrderForSession(params CreateOrderParams) (Order, bool, error) {
	args := m.Called(params)
	return args.Get(0).(Order), args.Bool(1), args.Error(2)
}
func (m *MockOrderSupportRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockOrderSupportRepository) GetMessages(orderId int) ([]Message, error) {
	args := m.Called(orderId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockOrderSupportRepository) ListProducts() ([]Product, error) {
	args := m.Called()
	return args.Get(0).([]Product), args.Error(1)
}
func (m *MockOrderSupportRepository) GetProductById(id int) (Product, error) {
	args := m.Called(id)
	return args.Get(0).(Product), args.Error(1)
}
func (m *MockOrderSupportRepository) CreateReview(params CreateReviewParams) (Review, error) {
	args := m.Called(params)
	return args.Get(0).(Review), args.Error(1)
}
func (m *MockOrderSupportRepository) ListReviews(productId int) ([]Review, error) {
	args := m.Called(productId)
	return args.Get(0).([]Review), args.Error(1)
}
