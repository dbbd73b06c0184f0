package consultation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinsura/portal-api/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const consCols = `id, clinic_id, doctor_id, patient_id, status,
	symptoms, symptoms_drawing, diagnosis, diagnosis_drawing,
	declared_amount, total_amount, insurer_amount, patient_amount, amount_delta,
	biometric_verified, fingerprint_missing,
	rights_checked_at, rights_checked_by, insurer_id,
	attempt_nonce, attempt_started_at,
	rejection_reason, paid_amount, payment_reference,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, cons *Consultation) error {
	if cons.ID == uuid.Nil {
		cons.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consultation (
			id, clinic_id, doctor_id, patient_id, status,
			symptoms, symptoms_drawing, diagnosis, diagnosis_drawing,
			declared_amount, total_amount, insurer_amount, patient_amount, amount_delta,
			biometric_verified, fingerprint_missing,
			rights_checked_at, rights_checked_by, insurer_id,
			attempt_nonce, attempt_started_at,
			rejection_reason, paid_amount, payment_reference
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,
			$11,$12,$13,$14,$15,$16,$17,$18,$19,
			$20,$21,$22,$23,$24
		)`,
		cons.ID, cons.ClinicID, cons.DoctorID, cons.PatientID, cons.Status,
		cons.Symptoms, cons.SymptomsDrawing, cons.Diagnosis, cons.DiagnosisDrawing,
		cons.DeclaredAmount, cons.TotalAmount, cons.InsurerAmount, cons.PatientAmount, cons.AmountDelta,
		cons.BiometricVerified, cons.FingerprintMissing,
		cons.RightsCheckedAt, cons.RightsCheckedBy, cons.InsurerID,
		cons.AttemptNonce, cons.AttemptStartedAt,
		cons.RejectionReason, cons.PaidAmount, cons.PaymentReference,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return scanCons(r.conn(ctx).QueryRow(ctx, `SELECT `+consCols+` FROM consultation WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, cons *Consultation) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultation SET
			patient_id=$2, status=$3,
			symptoms=$4, symptoms_drawing=$5, diagnosis=$6, diagnosis_drawing=$7,
			declared_amount=$8, total_amount=$9, insurer_amount=$10, patient_amount=$11, amount_delta=$12,
			biometric_verified=$13, fingerprint_missing=$14,
			rights_checked_at=$15, rights_checked_by=$16, insurer_id=$17,
			attempt_nonce=$18, attempt_started_at=$19,
			rejection_reason=$20, paid_amount=$21, payment_reference=$22,
			updated_at=NOW()
		WHERE id = $1`,
		cons.ID, cons.PatientID, cons.Status,
		cons.Symptoms, cons.SymptomsDrawing, cons.Diagnosis, cons.DiagnosisDrawing,
		cons.DeclaredAmount, cons.TotalAmount, cons.InsurerAmount, cons.PatientAmount, cons.AmountDelta,
		cons.BiometricVerified, cons.FingerprintMissing,
		cons.RightsCheckedAt, cons.RightsCheckedBy, cons.InsurerID,
		cons.AttemptNonce, cons.AttemptStartedAt,
		cons.RejectionReason, cons.PaidAmount, cons.PaymentReference,
	)
	return err
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Consultation, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0
	if filter.ClinicID != uuid.Nil {
		n++
		where += fmt.Sprintf(" AND clinic_id = $%d", n)
		args = append(args, filter.ClinicID)
	}
	if filter.DoctorID != uuid.Nil {
		n++
		where += fmt.Sprintf(" AND doctor_id = $%d", n)
		args = append(args, filter.DoctorID)
	}
	if filter.Status != "" {
		n++
		where += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, filter.Status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM consultation`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + consCols + ` FROM consultation` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectCons(rows, total)
}

// Acts

func (r *repoPG) ReplaceActs(ctx context.Context, consultationID uuid.UUID, acts []*Act) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM consultation_act WHERE consultation_id = $1`, consultationID); err != nil {
		return err
	}
	for _, a := range acts {
		a.ID = uuid.New()
		a.ConsultationID = consultationID
		if _, err := q.Exec(ctx, `
			INSERT INTO consultation_act (id, consultation_id, code, label, declared_price)
			VALUES ($1,$2,$3,$4,$5)`,
			a.ID, a.ConsultationID, a.Code, a.Label, a.DeclaredPrice,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetActs(ctx context.Context, consultationID uuid.UUID) ([]*Act, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, consultation_id, code, label, declared_price
		FROM consultation_act WHERE consultation_id = $1 ORDER BY code`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var acts []*Act
	for rows.Next() {
		var a Act
		if err := rows.Scan(&a.ID, &a.ConsultationID, &a.Code, &a.Label, &a.DeclaredPrice); err != nil {
			return nil, err
		}
		acts = append(acts, &a)
	}
	return acts, rows.Err()
}

// Medications

func (r *repoPG) ReplaceMedications(ctx context.Context, consultationID uuid.UUID, meds []*Medication) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM consultation_medication WHERE consultation_id = $1`, consultationID); err != nil {
		return err
	}
	for _, m := range meds {
		m.ID = uuid.New()
		m.ConsultationID = consultationID
		if _, err := q.Exec(ctx, `
			INSERT INTO consultation_medication (id, consultation_id, name, dosage, duration)
			VALUES ($1,$2,$3,$4,$5)`,
			m.ID, m.ConsultationID, m.Name, m.Dosage, m.Duration,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetMedications(ctx context.Context, consultationID uuid.UUID) ([]*Medication, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, consultation_id, name, dosage, duration
		FROM consultation_medication WHERE consultation_id = $1 ORDER BY name`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []*Medication
	for rows.Next() {
		var m Medication
		if err := rows.Scan(&m.ID, &m.ConsultationID, &m.Name, &m.Dosage, &m.Duration); err != nil {
			return nil, err
		}
		meds = append(meds, &m)
	}
	return meds, rows.Err()
}

// Status History

func (r *repoPG) AddStatusHistory(ctx context.Context, sc *StatusChange) error {
	sc.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consultation_status_history (id, consultation_id, from_status, to_status, actor, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		sc.ID, sc.ConsultationID, sc.FromStatus, sc.ToStatus, sc.Actor, sc.ChangedAt,
	)
	return err
}

func (r *repoPG) GetStatusHistory(ctx context.Context, consultationID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, consultation_id, from_status, to_status, actor, changed_at
		FROM consultation_status_history WHERE consultation_id = $1 ORDER BY changed_at`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*StatusChange
	for rows.Next() {
		var sc StatusChange
		if err := rows.Scan(&sc.ID, &sc.ConsultationID, &sc.FromStatus, &sc.ToStatus, &sc.Actor, &sc.ChangedAt); err != nil {
			return nil, err
		}
		history = append(history, &sc)
	}
	return history, rows.Err()
}

func scanCons(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(
		&c.ID, &c.ClinicID, &c.DoctorID, &c.PatientID, &c.Status,
		&c.Symptoms, &c.SymptomsDrawing, &c.Diagnosis, &c.DiagnosisDrawing,
		&c.DeclaredAmount, &c.TotalAmount, &c.InsurerAmount, &c.PatientAmount, &c.AmountDelta,
		&c.BiometricVerified, &c.FingerprintMissing,
		&c.RightsCheckedAt, &c.RightsCheckedBy, &c.InsurerID,
		&c.AttemptNonce, &c.AttemptStartedAt,
		&c.RejectionReason, &c.PaidAmount, &c.PaymentReference,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCons(rows pgx.Rows, total int) ([]*Consultation, int, error) {
	var out []*Consultation
	for rows.Next() {
		var c Consultation
		err := rows.Scan(
			&c.ID, &c.ClinicID, &c.DoctorID, &c.PatientID, &c.Status,
			&c.Symptoms, &c.SymptomsDrawing, &c.Diagnosis, &c.DiagnosisDrawing,
			&c.DeclaredAmount, &c.TotalAmount, &c.InsurerAmount, &c.PatientAmount, &c.AmountDelta,
			&c.BiometricVerified, &c.FingerprintMissing,
			&c.RightsCheckedAt, &c.RightsCheckedBy, &c.InsurerID,
			&c.AttemptNonce, &c.AttemptStartedAt,
			&c.RejectionReason, &c.PaidAmount, &c.PaymentReference,
			&c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, &c)
	}
	return out, total, rows.Err()
}
