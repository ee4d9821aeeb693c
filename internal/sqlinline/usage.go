package sqlinline

const QSelectUsage = `--sql 8b432d17-5ec0-4793-8236-25ca583787be
select used, monthly_limit
from usage
where user_id = $1::uuid
  and period_start = $2::date
limit 1;
`

// QConsumeUsage debits credits in one conditional statement. No row comes
// back when the debit would push used past monthly_limit.
const QConsumeUsage = `--sql 919b5f3d-bd9b-4fdd-bc4d-f12589bda146
insert into usage (user_id, period_start, used, monthly_limit, updated_at)
select $1::uuid, $2::date, $3::int, $4::int, now()
where $3::int <= $4::int
on conflict (user_id, period_start) do update set
    used = usage.used + excluded.used,
    updated_at = now()
where usage.used + excluded.used <= usage.monthly_limit
returning used, monthly_limit;
`

// QSetUsageLimit moves the period onto a new limit. used is kept as is and may
// exceed the new limit after a downgrade.
const QSetUsageLimit = `--sql 93b1d767-74a7-4eb6-b440-b145fb6e6d54
insert into usage (user_id, period_start, used, monthly_limit, updated_at)
values ($1::uuid, $2::date, 0, $3::int, now())
on conflict (user_id, period_start) do update set
    monthly_limit = excluded.monthly_limit,
    updated_at = now()
returning used, monthly_limit;
`

const QResetUsage = `--sql 92493799-4519-45eb-9822-177b35d74e4a
insert into usage (user_id, period_start, used, monthly_limit, updated_at)
values ($1::uuid, $2::date, 0, $3::int, now())
on conflict (user_id, period_start) do update set
    monthly_limit = excluded.monthly_limit,
    used = 0,
    updated_at = now()
returning used, monthly_limit;
`
