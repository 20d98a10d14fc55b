package sqlinline

const QSelectProviderKeys = `--sql 3f6f2f84-9f2e-4f0b-b711-54f1f0a4d9c2
select api_key
from integration_keys
where provider = $1::text
  and revoked_at is null
order by priority asc, created_at asc;
`

const QInsertProviderKey = `--sql a1c2f7d0-4f53-4bb0-9a4e-2e8f6f1b3dd4
insert into integration_keys (id, provider, api_key, priority, created_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::int, 100), now())
on conflict (provider, api_key) do update set
    priority = excluded.priority,
    revoked_at = null;
`

const QRevokeProviderKey = `--sql 5b9d3c1e-8a07-44e2-bf64-7c2d9e0f5a18
update integration_keys
set revoked_at = now()
where provider = $1::text
  and api_key = $2::text
  and revoked_at is null;
`
