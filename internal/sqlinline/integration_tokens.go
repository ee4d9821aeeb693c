package sqlinline

const QSelectIntegrationToken = `--sql 59306174-2c39-4c72-b0b7-b7c2f7f79663
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 35e99b1f-77ea-4e89-9b1b-178ddd32788d
insert into integration_tokens (provider, token, properties, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
