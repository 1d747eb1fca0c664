package email

import (
	"fmt"
	"net/smtp"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
	}
}

// SendNewOrder tells a farmer a new order arrived
func (s *Service) SendNewOrder(to, orderNumber string, total int64, itemCount int) error {
	subject := fmt.Sprintf("New order %s", orderNumber)
	body := BuildNewOrderBody(orderNumber, total, itemCount)
	return s.send(to, subject, body)
}

// SendStatusUpdate tells a buyer their order moved to a new status
func (s *Service) SendStatusUpdate(to, orderNumber, oldStatus, newStatus string) error {
	subject := fmt.Sprintf("Order %s is now %s", orderNumber, newStatus)
	body := BuildStatusUpdateBody(orderNumber, oldStatus, newStatus)
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}
