package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/food-order-platform/internal/order/application"
	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	payment "github.com/dmehra2102/food-order-platform/internal/payment/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const selectOrders = `
	SELECT o.id, o.user_id, o.restaurant_id, o.total_price, o.status, o.order_date,
	       p.id, p.method, p.amount, p.status
	FROM orders o
	JOIN payments p ON p.order_id = o.id`

func (r *Repository) Create(ctx context.Context, o *domain.Order, event application.EventFunc) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	saved := o.Clone()
	err = tx.QueryRow(ctx, `INSERT INTO orders (user_id, restaurant_id, total_price, status, order_date)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		saved.UserID, saved.RestaurantID, saved.TotalPrice, string(saved.Status), saved.OrderDate).Scan(&saved.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, item := range saved.Items {
		batch.Queue(`INSERT INTO order_items (order_id, dish_id, quantity, price) VALUES ($1,$2,$3,$4) RETURNING id`,
			saved.ID, item.DishID, item.Quantity, item.Price)
	}
	batch.Queue(`INSERT INTO payments (order_id, method, amount, status) VALUES ($1,$2,$3,$4) RETURNING id`,
		saved.ID, saved.Payment.Method, saved.Payment.Amount, string(saved.Payment.Status))

	br := tx.SendBatch(ctx, batch)
	for i := range saved.Items {
		if err := br.QueryRow().Scan(&saved.Items[i].ID); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	if err := br.QueryRow().Scan(&saved.Payment.ID); err != nil {
		_ = br.Close()
		return fmt.Errorf("insert payment: %w", err)
	}
	if err := br.Close(); err != nil {
		return err
	}

	if err := insertEvent(ctx, tx, saved, event); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	*o = saved
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (domain.Order, error) {
	orders, err := loadOrders(ctx, r.pool, selectOrders+` WHERE o.id = $1`, id)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, fmt.Errorf("%w: id %d", domain.ErrOrderNotFound, id)
	}
	return orders[0], nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, decide application.StatusDecision, event application.EventFunc) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	orders, err := loadOrders(ctx, tx, selectOrders+` WHERE o.id = $1 FOR UPDATE OF o`, id)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, fmt.Errorf("%w: id %d", domain.ErrOrderNotFound, id)
	}
	cur := orders[0]

	next, changed, err := decide(cur.Clone())
	if err != nil {
		return domain.Order{}, err
	}
	if !changed {
		return cur, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, string(next)); err != nil {
		return domain.Order{}, fmt.Errorf("update status: %w", err)
	}
	cur.Status = next
	if err := insertEvent(ctx, tx, cur, event); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return cur, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return loadOrders(ctx, r.pool, selectOrders+` WHERE o.user_id = $1 ORDER BY o.id`, userID)
}

func (r *Repository) ListAll(ctx context.Context) ([]domain.Order, error) {
	return loadOrders(ctx, r.pool, selectOrders+` ORDER BY o.id`)
}

func (r *Repository) FindByDateRange(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	return loadOrders(ctx, r.pool, selectOrders+` WHERE o.order_date BETWEEN $1 AND $2 ORDER BY o.id`, from, to)
}

func insertEvent(ctx context.Context, tx pgx.Tx, o domain.Order, event application.EventFunc) error {
	if event == nil {
		return nil
	}
	msg, err := event(o)
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}
	if msg == nil {
		return nil
	}
	headers := msg.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err = tx.Exec(ctx, `INSERT INTO outbox (event_id, aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending')`,
		msg.EventID, msg.AggregateType, msg.AggregateID, msg.Type, msg.Payload, headers, msg.Traceparent)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}

func loadOrders(ctx context.Context, q querier, sql string, args ...any) ([]domain.Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	var (
		orders []domain.Order
		ids    []int64
	)
	index := make(map[int64]int)
	for rows.Next() {
		var (
			o             domain.Order
			status, pstat string
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.RestaurantID, &o.TotalPrice, &status, &o.OrderDate,
			&o.Payment.ID, &o.Payment.Method, &o.Payment.Amount, &pstat); err != nil {
			rows.Close()
			return nil, err
		}
		o.Status = domain.OrderStatus(status)
		o.Payment.Status = payment.Status(pstat)
		o.OrderDate = o.OrderDate.UTC()
		index[o.ID] = len(orders)
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}

	itemRows, err := q.Query(ctx, `SELECT id, order_id, dish_id, quantity, price FROM order_items WHERE order_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var (
			item    domain.OrderItem
			orderID int64
		)
		if err := itemRows.Scan(&item.ID, &orderID, &item.DishID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		i, ok := index[orderID]
		if !ok {
			return nil, errors.New("order item without order")
		}
		orders[i].Items = append(orders[i].Items, item)
	}
	return orders, itemRows.Err()
}
