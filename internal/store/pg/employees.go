package pg

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/policy"
	"emutabaah.org/internal/store"
)

type employeeStore struct{ db *sql.DB }

const employeeColumns = `e.id, e.nip, i.email, e.name, e.role, e.hospital_id,
	e.position, e.photo_url, e.signature_url, e.is_active, i.password_hash,
	e.created_at, e.updated_at`

func (s *employeeStore) CreateIdentity(ctx context.Context, id *store.Identity) error {
	if id.ID == "" {
		id.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into identities(id, email, password_hash) values($1,$2,$3)`,
		id.ID, strings.ToLower(id.Email), id.PasswordHash,
	)
	return mapError(err)
}

func (s *employeeStore) DeleteIdentity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from identities where id=$1`, id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *employeeStore) CreateProfile(ctx context.Context, e *store.Employee) error {
	_, err := s.db.ExecContext(ctx,
		`insert into employees(id, nip, name, role, hospital_id, position, photo_url, signature_url, is_active)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.NIP, e.Name, string(e.Role), e.HospitalID, e.Position, e.PhotoURL, e.SignatureURL, e.IsActive,
	)
	return mapError(err)
}

func (s *employeeStore) scanEmployee(row interface{ Scan(...any) error }) (*store.Employee, error) {
	var (
		e    store.Employee
		role string
	)
	err := row.Scan(&e.ID, &e.NIP, &e.Email, &e.Name, &role, &e.HospitalID,
		&e.Position, &e.PhotoURL, &e.SignatureURL, &e.IsActive, &e.PasswordHash,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	e.Role = policy.ParseRole(role)
	return &e, nil
}

func (s *employeeStore) Find(ctx context.Context, id string) (*store.Employee, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+employeeColumns+` from employees e join identities i on i.id = e.id where e.id=$1`, id)
	e, err := s.scanEmployee(row)
	if err != nil {
		return nil, err
	}
	e.ManagedHospitalIDs, err = s.ManagedHospitals(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *employeeStore) FindByIdentifier(ctx context.Context, identifier string) (*store.Employee, error) {
	identifier = strings.TrimSpace(identifier)
	row := s.db.QueryRowContext(ctx,
		`select `+employeeColumns+` from employees e join identities i on i.id = e.id
		 where i.email = lower($1) or e.nip = $1`, identifier)
	e, err := s.scanEmployee(row)
	if err != nil {
		return nil, err
	}
	e.ManagedHospitalIDs, err = s.ManagedHospitals(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *employeeStore) List(ctx context.Context, f store.EmployeeFilter) ([]*store.Employee, error) {
	query := `select ` + employeeColumns + ` from employees e join identities i on i.id = e.id`
	var (
		conds []string
		args  []any
	)
	if len(f.HospitalIDs) > 0 {
		args = append(args, f.HospitalIDs)
		conds = append(conds, "e.hospital_id = any($"+strconv.Itoa(len(args))+")")
	}
	if f.Role != "" {
		args = append(args, string(f.Role))
		conds = append(conds, "e.role = $"+strconv.Itoa(len(args)))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, "(lower(e.name) like $"+n+" or e.nip like $"+n+")")
	}
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by e.name asc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*store.Employee
	for rows.Next() {
		e, err := s.scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *employeeStore) UpdateProfile(ctx context.Context, e *store.Employee) error {
	res, err := s.db.ExecContext(ctx,
		`update employees set name=$2, position=$3, photo_url=$4, signature_url=$5, hospital_id=$6, updated_at=now()
		 where id=$1`,
		e.ID, e.Name, e.Position, e.PhotoURL, e.SignatureURL, e.HospitalID,
	)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *employeeStore) UpdateRole(ctx context.Context, id string, role policy.Role) error {
	res, err := s.db.ExecContext(ctx,
		`update employees set role=$2, updated_at=now() where id=$1`, id, string(role))
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *employeeStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update employees set is_active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *employeeStore) Delete(ctx context.Context, id string) error {
	// Identity delete cascades to the profile and scope assignments.
	return s.DeleteIdentity(ctx, id)
}

func (s *employeeStore) ManagedHospitals(ctx context.Context, employeeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select hospital_id from admin_hospitals where employee_id=$1 order by hospital_id`, employeeID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *employeeStore) SetManagedHospitals(ctx context.Context, employeeID string, hospitalIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from admin_hospitals where employee_id=$1`, employeeID); err != nil {
		return mapError(err)
	}
	for _, hid := range hospitalIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into admin_hospitals(employee_id, hospital_id) values($1,$2) on conflict do nothing`,
			employeeID, hid); err != nil {
			return mapError(err)
		}
	}
	return tx.Commit()
}
